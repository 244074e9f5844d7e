package ports

import (
	"context"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// ScrapeDispatcher resolves a site's seed URLs into listing URLs, chunks
// them, and hands the resulting ScrapeJob to the TaskBroker (spec.md §4.10).
type ScrapeDispatcher interface {
	Dispatch(ctx context.Context, site string, seedURLs []string) (domain.ScrapeJob, error)
	Status(ctx context.Context, jobID string) (domain.ScrapeJob, error)
}

// ScrapeWorker fetches and parses every URL in one chunk, reporting a single
// ChunkResult with one entry per URL (spec.md §4.9, §4.11). It is what
// TaskBroker.Consume's handler wraps.
type ScrapeWorker interface {
	Process(ctx context.Context, task ChunkTask) (domain.ChunkResult, error)
}

// ScrapeAggregator drains ChunkResults off the TaskBroker, folds their
// counts into the job record, persists extracted listings, and advances the
// job's lifecycle status through to COMPLETE; it never sets FAILED
// (spec.md §4.9, §4.12).
type ScrapeAggregator interface {
	Aggregate(ctx context.Context, jobID string) error
}

// Orchestrator owns the process lifecycle: starting the proxy lifecycle
// engine, the rotator, the broker consumer, and graceful shutdown
// (spec.md §4.13).
type Orchestrator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	WaitForProxies(ctx context.Context) error
}
