//go:build redis

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	return &Store{client: goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
}

func TestRefillBucket_ExhaustsThenRefills(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	allowed, remaining, err := s.RefillBucket(ctx, "imot.bg", 2, 1, now)
	if err != nil || !allowed || remaining != 1 {
		t.Fatalf("first withdrawal: allowed=%v remaining=%v err=%v", allowed, remaining, err)
	}

	allowed, remaining, err = s.RefillBucket(ctx, "imot.bg", 2, 1, now)
	if err != nil || !allowed || remaining != 0 {
		t.Fatalf("second withdrawal: allowed=%v remaining=%v err=%v", allowed, remaining, err)
	}

	allowed, _, err = s.RefillBucket(ctx, "imot.bg", 2, 1, now)
	if err != nil || allowed {
		t.Fatalf("third withdrawal should be denied, got allowed=%v err=%v", allowed, err)
	}

	later := now.Add(2 * time.Second)
	allowed, _, err = s.RefillBucket(ctx, "imot.bg", 2, 1, later)
	if err != nil || !allowed {
		t.Fatalf("withdrawal after refill should succeed, got allowed=%v err=%v", allowed, err)
	}
}

func TestCircuitTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	cfg := ports.CircuitConfig{FailureThreshold: 3, CooldownPeriod: time.Second}

	var snap domain.CircuitSnapshot
	var err error
	for i := 0; i < 3; i++ {
		snap, err = s.RecordCircuitResult(ctx, "bazar.bg", false, domain.BlockKindNetwork, now, cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if snap.State != domain.CircuitOpen {
		t.Fatalf("expected circuit open after %d failures, got %s", cfg.FailureThreshold, snap.State)
	}

	later := now.Add(2 * time.Second)
	snap, err = s.RecordCircuitResult(ctx, "bazar.bg", true, "", later, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.State != domain.CircuitClosed {
		t.Fatalf("expected circuit closed after successful half-open probe, got %s", snap.State)
	}
}

func TestResetCircuit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := ports.CircuitConfig{FailureThreshold: 1, CooldownPeriod: time.Minute}

	_, _ = s.RecordCircuitResult(ctx, "imot.bg", false, domain.BlockKindNetwork, time.Now(), cfg)
	if err := s.ResetCircuit(ctx, "imot.bg"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap, err := s.GetCircuit(ctx, "imot.bg")
	if err != nil || snap.State != domain.CircuitClosed {
		t.Fatalf("expected circuit closed after reset, got %s, err=%v", snap.State, err)
	}
}

func TestProxyScore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	score := domain.ProxyScore{Key: "1.2.3.4:8080", Score: 2.5, Successes: 5, Failures: 1}
	if err := s.PutProxyScore(ctx, score); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetProxyScore(ctx, score.Key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Score != score.Score || got.Successes != score.Successes || got.Failures != score.Failures {
		t.Fatalf("round-tripped score mismatch: got %+v, want %+v", got, score)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetJob(context.Background(), "missing")
	if err != domain.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestPutJob_GetJob_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := domain.ScrapeJob{ID: "job-1", SeedURLs: []string{"https://www.imot.bg/x"}, TotalChunks: 1}
	if err := s.PutJob(ctx, job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != job.ID || len(got.SeedURLs) != 1 {
		t.Fatalf("round-tripped job mismatch: got %+v", got)
	}
}
