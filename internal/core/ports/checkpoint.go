package ports

import (
	"context"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// CheckpointManager persists crash-recovery state for a job, batching
// writes and flushing atomically (spec.md §4.11, §8 property 9).
type CheckpointManager interface {
	Load(ctx context.Context, jobID string) (domain.Checkpoint, error)
	MarkScraped(ctx context.Context, jobID, url string) error
	MarkPending(ctx context.Context, jobID string, urls []string) error
	Flush(ctx context.Context, jobID string) error

	// Clear removes a job's checkpoint snapshot entirely, called by the
	// Aggregator once a job reaches COMPLETE and crash recovery is no longer needed
	// (spec.md §4.4, §8 scenario S3).
	Clear(ctx context.Context, jobID string) error
}
