// Package memory provides an in-process CoordinationStore used by unit
// tests and by single-process deployments that don't need a shared Redis.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

// Store is an in-memory CoordinationStore. All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	buckets  map[string]domain.BucketState
	circuits map[string]domain.CircuitSnapshot
	scores   map[string]domain.ProxyScore
	jobs     map[string]domain.ScrapeJob
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		buckets:  make(map[string]domain.BucketState),
		circuits: make(map[string]domain.CircuitSnapshot),
		scores:   make(map[string]domain.ProxyScore),
		jobs:     make(map[string]domain.ScrapeJob),
	}
}

func (s *Store) RefillBucket(_ context.Context, domainKey string, capacity, refillPerSecond float64, now time.Time) (bool, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[domainKey]
	if !ok {
		b = domain.BucketState{Domain: domainKey, Tokens: capacity, LastRefillAt: now}
	}

	tokens := b.Refill(capacity, refillPerSecond, now)
	allowed := tokens >= 1
	if allowed {
		tokens--
	}

	s.buckets[domainKey] = domain.BucketState{Domain: domainKey, Tokens: tokens, LastRefillAt: now}
	return allowed, tokens, nil
}

func (s *Store) GetCircuit(_ context.Context, domainKey string) (domain.CircuitSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.circuits[domainKey]
	if !ok {
		return domain.CircuitSnapshot{Domain: domainKey, State: domain.CircuitClosed}, nil
	}
	return snap, nil
}

func (s *Store) RecordCircuitResult(_ context.Context, domainKey string, success bool, kind domain.BlockKind, now time.Time, cfg ports.CircuitConfig) (domain.CircuitSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.circuits[domainKey]
	if !ok {
		snap = domain.CircuitSnapshot{Domain: domainKey, State: domain.CircuitClosed}
	}

	if success {
		snap.LastBlockKind = ""
	} else {
		snap.LastBlockKind = kind
	}

	switch snap.State {
	case domain.CircuitClosed:
		if success {
			snap.ConsecutiveFails = 0
		} else {
			snap.ConsecutiveFails++
			if snap.ShouldOpen(cfg.FailureThreshold) {
				snap.State = domain.CircuitOpen
				snap.OpenedAt = now
			}
		}
	case domain.CircuitOpen:
		if !snap.ShouldProbe(cfg.CooldownPeriod, now) {
			break
		}
		// The cooldown has elapsed, so this result is the outcome of the
		// trial request Allow let through: apply it as a HALF_OPEN probe.
		snap.State = domain.CircuitHalfOpen
		snap.HalfOpenProbes = 0
		fallthrough
	case domain.CircuitHalfOpen:
		snap.HalfOpenProbes++
		if success {
			snap.State = domain.CircuitClosed
			snap.ConsecutiveFails = 0
			snap.HalfOpenProbes = 0
		} else {
			snap.State = domain.CircuitOpen
			snap.OpenedAt = now
			snap.HalfOpenProbes = 0
		}
	}

	s.circuits[domainKey] = snap
	return snap, nil
}

func (s *Store) ResetCircuit(_ context.Context, domainKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circuits[domainKey] = domain.CircuitSnapshot{Domain: domainKey, State: domain.CircuitClosed}
	return nil
}

func (s *Store) GetProxyScore(_ context.Context, key string) (domain.ProxyScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.scores[key]
	if !ok {
		return domain.NewProxyScore(key), nil
	}
	return score, nil
}

func (s *Store) PutProxyScore(_ context.Context, score domain.ProxyScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.Key] = score
	return nil
}

func (s *Store) PutJob(_ context.Context, job domain.ScrapeJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (domain.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ScrapeJob{}, domain.ErrJobNotFound
	}
	return job, nil
}

func (s *Store) Close() error { return nil }
