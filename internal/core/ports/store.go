package ports

import (
	"context"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// CoordinationStore is the shared, atomic source of truth for rate-limit
// buckets, circuit breaker state, and proxy scores across every worker
// process (spec.md §4.2, §4.3, §4.7). Implementations must make
// RefillBucket and RecordCircuitResult atomic against concurrent callers.
type CoordinationStore interface {
	// RefillBucket atomically advances a domain's token bucket and attempts
	// to withdraw one token, returning whether the withdrawal succeeded.
	RefillBucket(ctx context.Context, domainKey string, capacity, refillPerSecond float64, now time.Time) (allowed bool, remaining float64, err error)

	// GetCircuit returns the current breaker snapshot for a domain, or a
	// zero-value CLOSED snapshot if none has been recorded yet.
	GetCircuit(ctx context.Context, domainKey string) (domain.CircuitSnapshot, error)

	// RecordCircuitResult folds a fetch outcome into the breaker state and
	// returns the resulting snapshot, performing any CLOSED->OPEN,
	// OPEN->HALF_OPEN or HALF_OPEN->{CLOSED,OPEN} transition atomically. kind
	// is the failure's classification (ignored on success) and is persisted
	// as the breaker's LastBlockKind at coordination-store key
	// circuit:{domain}:last_block (spec.md §3, §6).
	RecordCircuitResult(ctx context.Context, domainKey string, success bool, kind domain.BlockKind, now time.Time, cfg CircuitConfig) (domain.CircuitSnapshot, error)

	// ResetCircuit forces a domain's breaker back to CLOSED (spec.md §6
	// `reset-circuit` CLI command).
	ResetCircuit(ctx context.Context, domainKey string) error

	// GetProxyScore returns the durable score for a proxy key, or the
	// starting score from domain.NewProxyScore if none exists.
	GetProxyScore(ctx context.Context, key string) (domain.ProxyScore, error)

	// PutProxyScore persists an updated proxy score.
	PutProxyScore(ctx context.Context, score domain.ProxyScore) error

	// PutJob and GetJob persist/read ScrapeJob status for the `status`
	// CLI command (spec.md §6).
	PutJob(ctx context.Context, job domain.ScrapeJob) error
	GetJob(ctx context.Context, id string) (domain.ScrapeJob, error)

	Close() error
}

// CircuitConfig carries the thresholds RecordCircuitResult needs, kept out
// of domain so the store package has no config dependency.
type CircuitConfig struct {
	FailureThreshold int
	CooldownPeriod   time.Duration
	HalfOpenMaxProbes int
}
