package ports

import (
	"context"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// ChunkTask is one unit of dispatched work: a chunk-sized batch of listing
// URLs belonging to one job and site (spec.md §4.10 step 5, §4.11).
type ChunkTask struct {
	JobID      string
	Site       string
	URLs       []string
	ChunkIndex int
}

// TaskBroker fans a ScrapeJob's chunks out to workers and joins their
// ChunkResults back into the job (spec.md §4.4, the group+callback "chord"
// pattern). Dispatch returns once every chunk has been enqueued; the
// caller awaits completion via the Aggregator or the `status` CLI command.
type TaskBroker interface {
	Dispatch(ctx context.Context, job domain.ScrapeJob, chunks [][]string) error
	Consume(ctx context.Context, handler func(ctx context.Context, task ChunkTask) (domain.ChunkResult, error)) error
	PublishResult(ctx context.Context, result domain.ChunkResult) error
	Results(ctx context.Context, jobID string) (<-chan domain.ChunkResult, error)
	Close() error
}
