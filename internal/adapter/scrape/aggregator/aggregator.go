// Package aggregator implements ports.ScrapeAggregator: it drains a job's
// ChunkResults, persists listings, and folds their counts into the job
// until every dispatched chunk is accounted for (spec.md §4.9, §4.12, the
// "callback" half of the chord).
package aggregator

import (
	"context"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/adapter/metrics"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

// Aggregator implements ports.ScrapeAggregator.
type Aggregator struct {
	store        ports.CoordinationStore
	broker       ports.TaskBroker
	listingStore ports.ListingStore
	checkpoint   ports.CheckpointManager
	log          logger.Logger
	metrics      *metrics.Collector
}

// New builds an Aggregator that reads results from broker, updates job
// state in store, and persists listings in listingStore. checkpoint may be
// nil, in which case no crash-recovery snapshot is cleared on completion.
// collector may be nil, in which case metric reporting is skipped.
func New(store ports.CoordinationStore, broker ports.TaskBroker, listingStore ports.ListingStore, checkpoint ports.CheckpointManager, log logger.Logger, collector *metrics.Collector) *Aggregator {
	return &Aggregator{store: store, broker: broker, listingStore: listingStore, checkpoint: checkpoint, log: log, metrics: collector}
}

var _ ports.ScrapeAggregator = (*Aggregator)(nil)

// Aggregate drains jobID's result channel until every dispatched chunk has
// reported in, persisting listings and folding result/error counts as they
// arrive, then advances the job to COMPLETE (spec.md §4.12). A job only
// ever reaches FAILED via the Dispatcher's fatal dispatch-time errors
// (spec.md §7): once chunks are in flight, partial failure still resolves
// to COMPLETE with the failures reflected in error_count.
func (a *Aggregator) Aggregate(ctx context.Context, jobID string) error {
	job, err := a.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.IsTerminal() {
		return nil
	}
	if job.CanAdvanceTo(domain.JobProcessing) {
		job.Status = domain.JobProcessing
		if err := a.store.PutJob(ctx, job); err != nil {
			return err
		}
	}

	results, err := a.broker.Results(ctx, jobID)
	if err != nil {
		return err
	}

	for !job.IsTerminal() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result, ok := <-results:
			if !ok {
				return nil
			}

			a.foldChunk(ctx, &job, result)

			if job.DoneChunks >= job.TotalChunks {
				a.finish(ctx, &job)
			}
			if err := a.store.PutJob(ctx, job); err != nil {
				return err
			}
		}
	}

	return nil
}

// foldChunk accounts for one ChunkResult: every succeeded entry is saved to
// the ListingStore and counted into result_count; every failed or skipped
// entry counts into error_count (spec.md §4.12).
func (a *Aggregator) foldChunk(ctx context.Context, job *domain.ScrapeJob, result domain.ChunkResult) {
	job.DoneChunks++

	succeeded, failed := result.Counts()
	if succeeded == 0 && failed > 0 {
		job.FailedChunks++
	}

	for _, entry := range result.Entries {
		a.metrics.ChunkResult(entry.Status)

		if entry.Status != domain.ChunkSucceeded || entry.Listing == nil {
			job.ErrorCount++
			if entry.Err != "" {
				a.log.Warn("listing entry failed", "job_id", job.ID, "url", entry.URL, "error", entry.Err, "skipped", entry.Skipped)
			}
			continue
		}

		if _, err := a.listingStore.Save(ctx, *entry.Listing); err != nil {
			a.log.Warn("failed to persist listing", "job_id", job.ID, "url", entry.URL, "error", err)
			job.ErrorCount++
			continue
		}
		job.ResultCount++
	}
}

// finish advances job through AGGREGATING to COMPLETE and clears its
// checkpoint, since crash-recovery state is no longer needed once every
// chunk has reported in (spec.md §4.4, §8 scenario S3).
func (a *Aggregator) finish(ctx context.Context, job *domain.ScrapeJob) {
	if job.CanAdvanceTo(domain.JobAggregating) {
		job.Status = domain.JobAggregating
	}
	job.CompletedAt = time.Now()
	if job.CanAdvanceTo(domain.JobComplete) {
		job.Status = domain.JobComplete
	}

	if a.metrics != nil {
		a.metrics.JobCompleted(job.Status)
	}
	if a.checkpoint != nil {
		if err := a.checkpoint.Clear(ctx, job.ID); err != nil {
			a.log.Warn("failed to clear checkpoint", "job_id", job.ID, "error", err)
		}
	}
}
