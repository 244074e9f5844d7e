package listingstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// PostgresStore implements ports.ListingStore against a Postgres table,
// using the (source_site, external_id) unique constraint for dedupe
// instead of a SELECT-then-INSERT race (spec.md §4.12).
type PostgresStore struct {
	db *sqlx.DB
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS listings (
	source_site TEXT NOT NULL,
	external_id TEXT NOT NULL,
	url         TEXT NOT NULL,
	title       TEXT NOT NULL,
	price_bgn   DOUBLE PRECISION NOT NULL,
	area_sq_m   DOUBLE PRECISION NOT NULL,
	location    TEXT NOT NULL,
	attributes  JSONB,
	scraped_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (source_site, external_id)
)`

// NewPostgresStore opens dsn and ensures the listings table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, &domain.StoreError{Op: "listingstore_connect", Cause: err}
	}
	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, &domain.StoreError{Op: "listingstore_migrate", Cause: err}
	}
	return &PostgresStore{db: db}, nil
}

const insertSQL = `
INSERT INTO listings (source_site, external_id, url, title, price_bgn, area_sq_m, location, attributes, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (source_site, external_id) DO NOTHING`

// Save inserts listing, returning false (not an error) if it already exists.
func (p *PostgresStore) Save(ctx context.Context, listing domain.ExtractedListing) (bool, error) {
	attrs, err := json.Marshal(listing.Attributes)
	if err != nil {
		return false, err
	}

	res, err := p.db.ExecContext(ctx, insertSQL,
		listing.SourceSite, listing.ExternalID, listing.URL, listing.Title,
		listing.PriceBGN, listing.AreaSqM, listing.Location, attrs, listing.ScrapedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return false, &domain.StoreError{Op: "listingstore_save", Cause: pqErr}
		}
		return false, &domain.StoreError{Op: "listingstore_save", Cause: err}
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// SaveBatch saves each listing in a single transaction, returning how many
// were newly inserted.
func (p *PostgresStore) SaveBatch(ctx context.Context, listings []domain.ExtractedListing) (int, error) {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, &domain.StoreError{Op: "listingstore_save_batch", Cause: err}
	}
	defer tx.Rollback() //nolint:errcheck

	inserted := 0
	for _, listing := range listings {
		attrs, err := json.Marshal(listing.Attributes)
		if err != nil {
			return inserted, err
		}
		res, err := tx.ExecContext(ctx, insertSQL,
			listing.SourceSite, listing.ExternalID, listing.URL, listing.Title,
			listing.PriceBGN, listing.AreaSqM, listing.Location, attrs, listing.ScrapedAt)
		if err != nil {
			return inserted, &domain.StoreError{Op: "listingstore_save_batch", Cause: err}
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return inserted, err
		}
		if rows > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, &domain.StoreError{Op: "listingstore_save_batch", Cause: err}
	}
	return inserted, nil
}

// Count returns the total number of distinct listings stored.
func (p *PostgresStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := p.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM listings"); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, &domain.StoreError{Op: "listingstore_count", Cause: err}
	}
	return count, nil
}

// Close closes the underlying database handle.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
