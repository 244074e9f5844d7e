package listingstore

import (
	"context"
	"testing"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

func TestMemoryStore_DedupesByKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	listing := domain.ExtractedListing{SourceSite: "imot.bg", ExternalID: "123"}
	inserted, err := store.Save(ctx, listing)
	if err != nil || !inserted {
		t.Fatalf("expected first save to insert, got inserted=%v err=%v", inserted, err)
	}

	inserted, err = store.Save(ctx, listing)
	if err != nil || inserted {
		t.Fatalf("expected duplicate save to be a no-op, got inserted=%v err=%v", inserted, err)
	}

	count, err := store.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected count 1, got %d err=%v", count, err)
	}
}

func TestMemoryStore_SaveBatch(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	listings := []domain.ExtractedListing{
		{SourceSite: "imot.bg", ExternalID: "1"},
		{SourceSite: "imot.bg", ExternalID: "2"},
		{SourceSite: "imot.bg", ExternalID: "1"},
	}
	inserted, err := store.SaveBatch(ctx, listings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inserted != 2 {
		t.Fatalf("expected 2 inserted, got %d", inserted)
	}
}
