// Package ratelimit implements ports.RateLimiter on top of a
// ports.CoordinationStore, polling the shared token bucket until a slot
// opens up or the caller gives up (spec.md §4.2).
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

// pollInterval is how often Allow retries the bucket while waiting for a
// token to refill. The bucket's own refill rate decides real throughput;
// this only bounds how promptly a blocked caller notices a free token.
const pollInterval = 25 * time.Millisecond

// Limiter implements ports.RateLimiter.
type Limiter struct {
	store   ports.CoordinationStore
	cfg     config.RateLimitConfig
	log     logger.Logger
	nowFunc func() time.Time
}

// New builds a Limiter backed by store, using cfg for default and
// per-domain bucket sizing. log reports the fail-open warning when the
// coordination store errors (spec.md §4.2, §8 property 8).
func New(store ports.CoordinationStore, cfg config.RateLimitConfig, log logger.Logger) *Limiter {
	return &Limiter{store: store, cfg: cfg, log: log, nowFunc: time.Now}
}

func (l *Limiter) bucketParams(domain string) (capacity, refillPerSecond float64) {
	if override, ok := l.cfg.PerDomain[domain]; ok {
		return override.Capacity, override.RefillPerSecond
	}
	return l.cfg.DefaultCapacity, l.cfg.DefaultRefillPerSecond
}

// Allow blocks until a token is available for domain or ctx is cancelled. A
// coordination-store failure fails open: it logs a warning and grants the
// request rather than blocking every fetch on a degraded store (spec.md
// §4.2: "Failure of the coordination store MUST fail open", §8 property 8).
func (l *Limiter) Allow(ctx context.Context, domain string) error {
	capacity, refillPerSecond := l.bucketParams(domain)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		allowed, _, err := l.store.RefillBucket(ctx, domain, capacity, refillPerSecond, l.nowFunc())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			l.log.Warn("coordination store unreachable, failing open", "domain", domain, "error", err)
			return nil
		}
		if allowed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
