package ratelimit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/adapter/store/memory"
	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// erroringStore always fails RefillBucket, simulating a coordination store
// outage so Allow's fail-open behaviour (spec.md §4.2, §8 property 8) can be
// exercised without a real Redis.
type erroringStore struct {
	*memory.Store
}

func (erroringStore) RefillBucket(context.Context, string, float64, float64, time.Time) (bool, float64, error) {
	return false, 0, &domain.StoreError{Op: "refill_bucket", Cause: errors.New("connection refused")}
}

var _ ports.CoordinationStore = erroringStore{}


func TestAllow_GrantsWithinCapacity(t *testing.T) {
	store := memory.New()
	limiter := New(store, config.RateLimitConfig{DefaultCapacity: 2, DefaultRefillPerSecond: 1}, testLogger())

	ctx := context.Background()
	if err := limiter.Allow(ctx, "imot.bg"); err != nil {
		t.Fatalf("first Allow failed: %v", err)
	}
	if err := limiter.Allow(ctx, "imot.bg"); err != nil {
		t.Fatalf("second Allow failed: %v", err)
	}
}

func TestAllow_BlocksThenCancels(t *testing.T) {
	store := memory.New()
	limiter := New(store, config.RateLimitConfig{DefaultCapacity: 1, DefaultRefillPerSecond: 0.001}, testLogger())

	ctx := context.Background()
	if err := limiter.Allow(ctx, "bazar.bg"); err != nil {
		t.Fatalf("first Allow failed: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := limiter.Allow(ctx2, "bazar.bg"); err == nil {
		t.Fatal("expected Allow to block past timeout and return an error")
	}
}

func TestAllow_FailsOpenOnStoreError(t *testing.T) {
	store := erroringStore{memory.New()}
	limiter := New(store, config.RateLimitConfig{DefaultCapacity: 1, DefaultRefillPerSecond: 1}, testLogger())

	if err := limiter.Allow(context.Background(), "imot.bg"); err != nil {
		t.Fatalf("expected Allow to fail open on store error, got %v", err)
	}
}

func TestAllow_PerDomainOverride(t *testing.T) {
	store := memory.New()
	limiter := New(store, config.RateLimitConfig{
		DefaultCapacity:        1,
		DefaultRefillPerSecond: 0.001,
		PerDomain: map[string]config.DomainRateLimit{
			"fast.bg": {Capacity: 5, RefillPerSecond: 5},
		},
	}, testLogger())

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := limiter.Allow(ctx, "fast.bg"); err != nil {
			t.Fatalf("Allow %d failed: %v", i, err)
		}
	}
}
