// Package checkpoint implements ports.CheckpointManager with batched,
// atomic file writes so a crashed worker can resume a job from the last
// flush instead of re-scraping everything (spec.md §4.11, §8 property 9).
package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

// Manager implements ports.CheckpointManager, batching MarkScraped/
// MarkPending calls in memory and flushing to disk every BatchSize
// mutations or FlushInterval, whichever comes first.
type Manager struct {
	dir           string
	flushInterval time.Duration
	batchSize     int
	log           logger.Logger

	mu      sync.Mutex
	dirty   map[string]int
	state   map[string]domain.Checkpoint
}

// New builds a Manager rooted at cfg.Directory.
func New(cfg config.CheckpointConfig, log logger.Logger) *Manager {
	return &Manager{
		dir:           cfg.Directory,
		flushInterval: cfg.FlushInterval,
		batchSize:     cfg.BatchSize,
		log:           log,
		dirty:         make(map[string]int),
		state:         make(map[string]domain.Checkpoint),
	}
}

func (m *Manager) path(jobID string) string {
	return filepath.Join(m.dir, jobID+".checkpoint.json")
}

// Load reads the checkpoint for jobID from disk, or returns a fresh empty
// checkpoint if none exists yet.
func (m *Manager) Load(_ context.Context, jobID string) (domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cp, ok := m.state[jobID]; ok {
		return cp, nil
	}

	raw, err := os.ReadFile(m.path(jobID))
	if os.IsNotExist(err) {
		cp := domain.Checkpoint{JobID: jobID}
		m.state[jobID] = cp
		return cp, nil
	}
	if err != nil {
		return domain.Checkpoint{}, &domain.StoreError{Op: "checkpoint_load", Cause: err}
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return domain.Checkpoint{}, &domain.StoreError{Op: "checkpoint_load", Cause: err}
	}
	m.state[jobID] = cp
	return cp, nil
}

// MarkScraped records url as done for jobID, flushing to disk once the
// batch threshold is reached.
func (m *Manager) MarkScraped(ctx context.Context, jobID, url string) error {
	m.mu.Lock()
	cp := m.state[jobID]
	cp.JobID = jobID
	cp.Scraped = append(cp.Scraped, url)
	cp.UpdatedAt = time.Now()
	m.state[jobID] = cp
	m.dirty[jobID]++
	shouldFlush := m.dirty[jobID] >= m.batchSize
	m.mu.Unlock()

	if shouldFlush {
		return m.Flush(ctx, jobID)
	}
	return nil
}

// MarkPending registers urls as pending work for jobID.
func (m *Manager) MarkPending(ctx context.Context, jobID string, urls []string) error {
	m.mu.Lock()
	cp := m.state[jobID]
	cp.JobID = jobID
	cp.Pending = append(cp.Pending, urls...)
	cp.UpdatedAt = time.Now()
	m.state[jobID] = cp
	m.dirty[jobID] += len(urls)
	shouldFlush := m.dirty[jobID] >= m.batchSize
	m.mu.Unlock()

	if shouldFlush {
		return m.Flush(ctx, jobID)
	}
	return nil
}

// Flush writes the current in-memory checkpoint for jobID to disk,
// via a temp file plus rename so a crash mid-write never leaves a
// truncated checkpoint behind.
func (m *Manager) Flush(_ context.Context, jobID string) error {
	m.mu.Lock()
	cp, ok := m.state[jobID]
	m.dirty[jobID] = 0
	m.mu.Unlock()

	if !ok {
		return nil
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return &domain.StoreError{Op: "checkpoint_flush", Cause: err}
	}

	encoded, err := json.Marshal(cp)
	if err != nil {
		return &domain.StoreError{Op: "checkpoint_flush", Cause: err}
	}

	tmp, err := os.CreateTemp(m.dir, jobID+".checkpoint.*.tmp")
	if err != nil {
		return &domain.StoreError{Op: "checkpoint_flush", Cause: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &domain.StoreError{Op: "checkpoint_flush", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &domain.StoreError{Op: "checkpoint_flush", Cause: err}
	}

	if err := os.Rename(tmpPath, m.path(jobID)); err != nil {
		os.Remove(tmpPath)
		return &domain.StoreError{Op: "checkpoint_flush", Cause: err}
	}

	m.log.Debug("checkpoint flushed", "job_id", jobID, "scraped", len(cp.Scraped), "pending", len(cp.Pending))
	return nil
}

// Clear discards jobID's in-memory checkpoint and removes its on-disk
// snapshot, so a completed job leaves no resumable state behind
// (spec.md §4.4, scenario S3).
func (m *Manager) Clear(_ context.Context, jobID string) error {
	m.mu.Lock()
	delete(m.state, jobID)
	delete(m.dirty, jobID)
	m.mu.Unlock()

	if err := os.Remove(m.path(jobID)); err != nil && !os.IsNotExist(err) {
		return &domain.StoreError{Op: "checkpoint_clear", Cause: err}
	}
	return nil
}

// StartPeriodicFlush runs a background loop that flushes every dirty job
// every FlushInterval, until ctx is cancelled.
func (m *Manager) StartPeriodicFlush(ctx context.Context) {
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			ids := make([]string, 0, len(m.dirty))
			for id, n := range m.dirty {
				if n > 0 {
					ids = append(ids, id)
				}
			}
			m.mu.Unlock()

			for _, id := range ids {
				if err := m.Flush(ctx, id); err != nil {
					m.log.Warn("periodic checkpoint flush failed", "job_id", id, "error", err)
				}
			}
		}
	}
}
