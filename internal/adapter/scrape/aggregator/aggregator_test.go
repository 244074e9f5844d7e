package aggregator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/adapter/broker/memory"
	"github.com/vasilev-labs/scrapecore/internal/adapter/checkpoint"
	"github.com/vasilev-labs/scrapecore/internal/adapter/listingstore"
	memstore "github.com/vasilev-labs/scrapecore/internal/adapter/store/memory"
	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAggregate_CompletesJobOnAllSuccess(t *testing.T) {
	store := memstore.New()
	broker := memory.New(8)
	listings := listingstore.NewMemoryStore()
	agg := New(store, broker, listings, nil, testLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job := domain.ScrapeJob{ID: "job1", Status: domain.JobDispatched, TotalChunks: 2}
	if err := store.PutJob(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	go func() {
		_ = broker.PublishResult(ctx, domain.ChunkResult{
			JobID: "job1", ChunkIndex: 0,
			Entries: []domain.ChunkEntry{
				{URL: "u1", Status: domain.ChunkSucceeded, Listing: &domain.ExtractedListing{SourceSite: "imot.bg", ExternalID: "1"}},
			},
		})
		_ = broker.PublishResult(ctx, domain.ChunkResult{
			JobID: "job1", ChunkIndex: 1,
			Entries: []domain.ChunkEntry{
				{URL: "u2", Status: domain.ChunkSucceeded, Listing: &domain.ExtractedListing{SourceSite: "imot.bg", ExternalID: "2"}},
			},
		})
	}()

	if err := agg.Aggregate(ctx, "job1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, err := store.GetJob(ctx, "job1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != domain.JobComplete {
		t.Fatalf("expected complete, got %s", final.Status)
	}
	if final.DoneChunks != 2 {
		t.Fatalf("expected 2 done chunks, got %d", final.DoneChunks)
	}
	if final.ResultCount != 2 {
		t.Fatalf("expected result_count=2, got %d", final.ResultCount)
	}

	count, err := listings.Count(ctx)
	if err != nil || count != 2 {
		t.Fatalf("expected 2 listings persisted, got %d err=%v", count, err)
	}
}

// TestAggregate_S2CircuitOpensMidRun mirrors spec.md §8 scenario S2: three
// URLs come back blocked, the remaining seven arrive skipped because the
// circuit opened, and the job still completes with result_count=0.
func TestAggregate_S2CircuitOpensMidRun(t *testing.T) {
	store := memstore.New()
	broker := memory.New(8)
	listings := listingstore.NewMemoryStore()
	agg := New(store, broker, listings, nil, testLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job := domain.ScrapeJob{ID: "job2", Status: domain.JobDispatched, TotalChunks: 1}
	if err := store.PutJob(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries := make([]domain.ChunkEntry, 0, 10)
	for i := 1; i <= 3; i++ {
		entries = append(entries, domain.ChunkEntry{URL: "u", Status: domain.ChunkFailed, Err: "blocked"})
	}
	for i := 4; i <= 10; i++ {
		entries = append(entries, domain.ChunkEntry{URL: "u", Status: domain.ChunkFailed, Err: "circuit_open", Skipped: true})
	}

	go func() {
		_ = broker.PublishResult(ctx, domain.ChunkResult{JobID: "job2", ChunkIndex: 0, Entries: entries})
	}()

	if err := agg.Aggregate(ctx, "job2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, err := store.GetJob(ctx, "job2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if final.Status != domain.JobComplete {
		t.Fatalf("expected complete even with all-failed chunk, got %s", final.Status)
	}
	if final.ResultCount != 0 {
		t.Fatalf("expected result_count=0, got %d", final.ResultCount)
	}
	if final.ErrorCount != 10 {
		t.Fatalf("expected error_count=10, got %d", final.ErrorCount)
	}
}

func TestAggregate_ClearsCheckpointOnCompletion(t *testing.T) {
	store := memstore.New()
	broker := memory.New(8)
	listings := listingstore.NewMemoryStore()
	cp := checkpoint.New(config.CheckpointConfig{Directory: t.TempDir(), FlushInterval: time.Hour, BatchSize: 100}, testLogger())
	agg := New(store, broker, listings, cp, testLogger(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	job := domain.ScrapeJob{ID: "job3", Status: domain.JobDispatched, TotalChunks: 1}
	if err := store.PutJob(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := cp.MarkPending(ctx, "job3", []string{"u1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	go func() {
		_ = broker.PublishResult(ctx, domain.ChunkResult{
			JobID: "job3", ChunkIndex: 0,
			Entries: []domain.ChunkEntry{{URL: "u1", Status: domain.ChunkSucceeded, Listing: &domain.ExtractedListing{SourceSite: "imot.bg", ExternalID: "1"}}},
		})
	}()

	if err := agg.Aggregate(ctx, "job3"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := cp.Load(ctx, "job3")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loaded.Pending) != 0 || len(loaded.Scraped) != 0 {
		t.Fatalf("expected checkpoint cleared, got %+v", loaded)
	}
}
