package ports

import (
	"context"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// ListingStore persists extracted listings, deduping on (source_site,
// external_id) (spec.md §4.12).
type ListingStore interface {
	Save(ctx context.Context, listing domain.ExtractedListing) (inserted bool, err error)
	SaveBatch(ctx context.Context, listings []domain.ExtractedListing) (inserted int, err error)
	Count(ctx context.Context) (int64, error)
	Close() error
}
