// Package listingstore provides ListingStore implementations: an
// in-memory map for tests and single-run jobs, and an optional
// Postgres-backed store for durable dedupe across runs (spec.md §4.12).
package listingstore

import (
	"context"
	"sync"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// MemoryStore implements ports.ListingStore in-process, deduping on
// (source_site, external_id).
type MemoryStore struct {
	mu       sync.Mutex
	listings map[string]domain.ExtractedListing
}

// NewMemoryStore returns an empty in-memory listing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{listings: make(map[string]domain.ExtractedListing)}
}

// Save inserts listing if its key hasn't been seen before, reporting
// whether this call was the one that inserted it.
func (m *MemoryStore) Save(_ context.Context, listing domain.ExtractedListing) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := listing.Key()
	if _, exists := m.listings[key]; exists {
		return false, nil
	}
	m.listings[key] = listing
	return true, nil
}

// SaveBatch saves each listing, returning how many were new.
func (m *MemoryStore) SaveBatch(ctx context.Context, listings []domain.ExtractedListing) (int, error) {
	inserted := 0
	for _, l := range listings {
		ok, err := m.Save(ctx, l)
		if err != nil {
			return inserted, err
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

// Count returns the number of distinct listings stored.
func (m *MemoryStore) Count(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.listings)), nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
