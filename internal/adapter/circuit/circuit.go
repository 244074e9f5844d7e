// Package circuit implements ports.CircuitBreaker on top of a
// ports.CoordinationStore, so the CLOSED/OPEN/HALF_OPEN state is shared
// across every worker process for the same domain (spec.md §4.3). When the
// coordination store itself is unreachable, Breaker falls back to a local
// in-memory gobreaker.CircuitBreaker per domain rather than failing every
// request closed or open outright (spec.md §9 Open Question 3: fail toward
// local resilience, not toward blocking all traffic).
package circuit

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vasilev-labs/scrapecore/internal/adapter/metrics"
	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

// Breaker implements ports.CircuitBreaker.
type Breaker struct {
	store   ports.CoordinationStore
	cfg     ports.CircuitConfig
	log     logger.Logger
	metrics *metrics.Collector

	mu       sync.Mutex
	fallback map[string]*gobreaker.CircuitBreaker

	nowFunc func() time.Time
}

// New builds a Breaker backed by store, using cfg for failure thresholds
// and cooldown. log is used to report when the local fallback engages.
// collector may be nil, in which case circuit-state gauges aren't reported.
func New(store ports.CoordinationStore, cfg config.CircuitConfig, log logger.Logger, collector *metrics.Collector) *Breaker {
	return &Breaker{
		store: store,
		cfg: ports.CircuitConfig{
			FailureThreshold:  cfg.FailureThreshold,
			CooldownPeriod:    cfg.CooldownPeriod,
			HalfOpenMaxProbes: cfg.HalfOpenMaxProbes,
		},
		log:      log,
		metrics:  collector,
		fallback: make(map[string]*gobreaker.CircuitBreaker),
		nowFunc:  time.Now,
	}
}

func (b *Breaker) fallbackFor(domainKey string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.fallback[domainKey]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "scrapecore-" + domainKey,
		MaxRequests: uint32(maxInt(1, b.cfg.HalfOpenMaxProbes)),
		Timeout:     b.cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(b.cfg.FailureThreshold)
		},
	})
	b.fallback[domainKey] = cb
	return cb
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Allow returns a *domain.CircuitOpenError when the breaker for domain is
// OPEN and the cooldown hasn't elapsed. If the coordination store is
// unreachable it falls back to the domain's local gobreaker instance.
func (b *Breaker) Allow(ctx context.Context, domainKey string) error {
	snap, err := b.store.GetCircuit(ctx, domainKey)
	if err != nil {
		b.log.Warn("coordination store unreachable, using local circuit breaker fallback", "domain", domainKey, "error", err)
		cb := b.fallbackFor(domainKey)
		if cb.State() == gobreaker.StateOpen {
			return &domain.CircuitOpenError{Domain: domainKey, OpenSince: "local-fallback"}
		}
		return nil
	}

	b.metrics.SetCircuitState(domainKey, snap.State)
	if snap.State == domain.CircuitOpen && !snap.ShouldProbe(b.cfg.CooldownPeriod, b.nowFunc()) {
		return &domain.CircuitOpenError{Domain: domainKey, OpenSince: snap.OpenedAt.String()}
	}
	return nil
}

func (b *Breaker) RecordSuccess(ctx context.Context, domainKey string) {
	if _, err := b.store.RecordCircuitResult(ctx, domainKey, true, "", b.nowFunc(), b.cfg); err != nil {
		b.log.Warn("coordination store unreachable recording success, using local fallback", "domain", domainKey, "error", err)
		cb := b.fallbackFor(domainKey)
		_, _ = cb.Execute(func() (interface{}, error) { return nil, nil })
	}
}

func (b *Breaker) RecordFailure(ctx context.Context, domainKey string, kind domain.BlockKind) {
	if _, err := b.store.RecordCircuitResult(ctx, domainKey, false, kind, b.nowFunc(), b.cfg); err != nil {
		b.log.Warn("coordination store unreachable recording failure, using local fallback", "domain", domainKey, "kind", kind, "error", err)
		cb := b.fallbackFor(domainKey)
		_, _ = cb.Execute(func() (interface{}, error) { return nil, assertErr })
	}
}

func (b *Breaker) Reset(ctx context.Context, domainKey string) error {
	b.mu.Lock()
	delete(b.fallback, domainKey)
	b.mu.Unlock()
	return b.store.ResetCircuit(ctx, domainKey)
}

// assertErr is a sentinel passed to gobreaker.Execute to count a failure
// without needing a real upstream error value.
var assertErr = &domain.FetchError{Kind: domain.ErrKindNetwork}
