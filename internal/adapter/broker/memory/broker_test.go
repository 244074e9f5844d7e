package memory

import (
	"context"
	"testing"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

func TestDispatchConsumeResults(t *testing.T) {
	b := New(8)
	job := domain.ScrapeJob{ID: "job1", Site: "imot.bg"}
	chunks := [][]string{
		{"https://imot.bg/a"},
		{"https://imot.bg/b"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = b.Consume(ctx, func(_ context.Context, task ports.ChunkTask) (domain.ChunkResult, error) {
			entries := make([]domain.ChunkEntry, len(task.URLs))
			for i, url := range task.URLs {
				entries[i] = domain.ChunkEntry{URL: url, Status: domain.ChunkSucceeded}
			}
			return domain.ChunkResult{JobID: task.JobID, ChunkIndex: task.ChunkIndex, Entries: entries}, nil
		})
	}()

	if err := b.Dispatch(ctx, job, chunks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := b.Results(ctx, "job1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := 0
	timeout := time.After(2 * time.Second)
	for seen < len(chunks) {
		select {
		case r := <-results:
			if len(r.Entries) != 1 || r.Entries[0].Status != domain.ChunkSucceeded {
				t.Fatalf("expected one succeeded entry, got %+v", r.Entries)
			}
			seen++
		case <-timeout:
			t.Fatalf("timed out waiting for results, got %d/%d", seen, len(chunks))
		}
	}
}

func TestClose_StopsConsume(t *testing.T) {
	b := New(1)
	if err := b.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	err := b.Consume(context.Background(), func(_ context.Context, task ports.ChunkTask) (domain.ChunkResult, error) {
		t.Fatalf("handler should not run after Close, got task %+v", task)
		return domain.ChunkResult{}, nil
	})
	if err != nil {
		t.Fatalf("expected Consume to return nil after Close, got %v", err)
	}
}
