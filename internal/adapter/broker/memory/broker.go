// Package memory implements ports.TaskBroker as an in-process chord: one
// chunk of URLs enqueued per task on a buffered channel, results fanned
// back out over a per-job channel, matching the group+callback pattern
// from spec.md §4.10-§4.12 without requiring Redis for single-process
// deployments.
package memory

import (
	"context"
	"sync"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

// Broker implements ports.TaskBroker in-process.
type Broker struct {
	tasks chan ports.ChunkTask

	mu      sync.Mutex
	results map[string]chan domain.ChunkResult
	closed  bool
}

// New builds a Broker with the given task queue depth.
func New(queueDepth int) *Broker {
	return &Broker{
		tasks:   make(chan ports.ChunkTask, queueDepth),
		results: make(map[string]chan domain.ChunkResult),
	}
}

var _ ports.TaskBroker = (*Broker)(nil)

func (b *Broker) resultsChan(jobID string) chan domain.ChunkResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.results[jobID]
	if !ok {
		ch = make(chan domain.ChunkResult, 64)
		b.results[jobID] = ch
	}
	return ch
}

// Dispatch enqueues one task per chunk, each task carrying job.Site so
// workers can derive per-URL domains without a second lookup.
func (b *Broker) Dispatch(ctx context.Context, job domain.ScrapeJob, chunks [][]string) error {
	for i, chunk := range chunks {
		t := ports.ChunkTask{JobID: job.ID, Site: job.Site, URLs: chunk, ChunkIndex: i}
		select {
		case b.tasks <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Consume runs handler for every dispatched chunk task until ctx is
// cancelled.
func (b *Broker) Consume(ctx context.Context, handler func(ctx context.Context, task ports.ChunkTask) (domain.ChunkResult, error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-b.tasks:
			if !ok {
				return nil
			}
			result, err := handler(ctx, t)
			if err != nil && len(result.Entries) == 0 {
				result = domain.ChunkResult{JobID: t.JobID, ChunkIndex: t.ChunkIndex}
			}
			if pubErr := b.PublishResult(ctx, result); pubErr != nil {
				return pubErr
			}
		}
	}
}

// PublishResult delivers result to whatever goroutine is reading Results
// for its job.
func (b *Broker) PublishResult(ctx context.Context, result domain.ChunkResult) error {
	ch := b.resultsChan(result.JobID)
	select {
	case ch <- result:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Results returns the channel of ChunkResults for jobID.
func (b *Broker) Results(_ context.Context, jobID string) (<-chan domain.ChunkResult, error) {
	return b.resultsChan(jobID), nil
}

// Close shuts down the task queue, so Consume returns nil once the queue is
// drained. Safe to call more than once; later calls are no-ops.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	close(b.tasks)
	return nil
}
