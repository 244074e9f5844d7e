package ports

import (
	"context"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// RateLimiter gates outbound requests per domain using the token-bucket
// algorithm (spec.md §4.2). Allow blocks until a token is available or ctx
// is cancelled. A coordination-store failure MUST fail open rather than
// propagate (spec.md §4.2, §8 property 8).
type RateLimiter interface {
	Allow(ctx context.Context, domain string) error
}

// CircuitBreaker gates outbound requests per domain using the CLOSED/OPEN/
// HALF_OPEN state machine (spec.md §4.3). Allow returns a
// *domain.CircuitOpenError when the breaker is OPEN and the cooldown has
// not elapsed.
type CircuitBreaker interface {
	Allow(ctx context.Context, domain string) error
	RecordSuccess(ctx context.Context, domain string)
	// RecordFailure folds a failed fetch into the breaker, classified by
	// kind so the persisted snapshot can answer "what last blocked this
	// domain" (spec.md §3 DomainCircuit, §6 circuit:{domain}:last_block).
	RecordFailure(ctx context.Context, domain string, kind domain.BlockKind)
	Reset(ctx context.Context, domain string) error
}
