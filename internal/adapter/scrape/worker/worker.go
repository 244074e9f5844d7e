// Package worker implements ports.ScrapeWorker: fetch and parse every URL in
// one chunk, reporting a single ChunkResult with one entry per URL
// (spec.md §4.9, §4.11).
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
	"github.com/vasilev-labs/scrapecore/internal/util"
)

// Worker implements ports.ScrapeWorker.
type Worker struct {
	fetcher    ports.Fetcher
	parsers    ports.ParserRegistry
	checkpoint ports.CheckpointManager
	log        logger.Logger
}

// New builds a Worker that fetches through fetcher, extracts listings with
// parsers, and checkpoints progress via checkpoint. checkpoint may be nil,
// in which case no crash-recovery state is recorded. The registry routes
// each URL to the right site parser, so one Worker serves every configured
// site (spec.md §4.10, §4.11).
func New(fetcher ports.Fetcher, parsers ports.ParserRegistry, checkpoint ports.CheckpointManager, log logger.Logger) *Worker {
	return &Worker{fetcher: fetcher, parsers: parsers, checkpoint: checkpoint, log: log}
}

var _ ports.ScrapeWorker = (*Worker)(nil)

// Process fetches and parses every URL in task, never re-dispatching or
// crawling further: task.URLs are already-discovered listing pages, and the
// only extraction a worker performs is ExtractListing (spec.md §4.11).
func (w *Worker) Process(ctx context.Context, task ports.ChunkTask) (domain.ChunkResult, error) {
	entries := make([]domain.ChunkEntry, 0, len(task.URLs))
	for _, url := range task.URLs {
		entries = append(entries, w.processURL(ctx, task, url))
	}
	return domain.ChunkResult{
		JobID:      task.JobID,
		ChunkIndex: task.ChunkIndex,
		Entries:    entries,
		FinishedAt: time.Now(),
	}, nil
}

// processURL runs the per-URL steps of spec.md §4.11: circuit gate (folded
// into Fetcher.Fetch, which checks CircuitBreaker.Allow before ever making a
// request), fetch, and extraction.
func (w *Worker) processURL(ctx context.Context, task ports.ChunkTask, url string) domain.ChunkEntry {
	fetched, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		var circuitErr *domain.CircuitOpenError
		if errors.As(err, &circuitErr) {
			return domain.ChunkEntry{URL: url, Status: domain.ChunkFailed, Err: string(domain.ErrKindCircuitOpen), Skipped: true}
		}

		kind := domain.ErrKindNetwork
		var fetchErr *domain.FetchError
		if errors.As(err, &fetchErr) {
			kind = fetchErr.Kind
		}
		return domain.ChunkEntry{URL: url, Status: domain.ChunkFailed, Err: string(kind)}
	}

	host := util.DomainFromURL(url)
	listing, err := w.parsers.ExtractListing(host, fetched.Body, url)
	if err != nil {
		return domain.ChunkEntry{URL: url, Status: domain.ChunkFailed, Err: string(domain.ErrKindExtraction)}
	}
	if listing == nil {
		return domain.ChunkEntry{URL: url, Status: domain.ChunkFailed, Err: "extraction_failed"}
	}

	if w.checkpoint != nil {
		if err := w.checkpoint.MarkScraped(ctx, task.JobID, url); err != nil && w.log != nil {
			w.log.Warn("checkpoint mark_scraped failed, listing still extracted", "job_id", task.JobID, "url", url, "error", err)
		}
	}

	return domain.ChunkEntry{URL: url, Listing: listing, Status: domain.ChunkSucceeded}
}
