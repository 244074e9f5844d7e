package circuit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/adapter/store/memory"
	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	store := memory.New()
	log := testLogger()
	b := New(store, config.CircuitConfig{FailureThreshold: 2, CooldownPeriod: time.Minute, HalfOpenMaxProbes: 1}, log, nil)

	ctx := context.Background()
	b.RecordFailure(ctx, "imot.bg", domain.BlockKindNetwork)
	b.RecordFailure(ctx, "imot.bg", domain.BlockKindNetwork)

	var openErr *domain.CircuitOpenError
	err := b.Allow(ctx, "imot.bg")
	if err == nil {
		t.Fatal("expected circuit to be open")
	}
	if !asCircuitOpenError(err, &openErr) {
		t.Fatalf("expected *domain.CircuitOpenError, got %T: %v", err, err)
	}
}

func TestBreaker_ResetClearsState(t *testing.T) {
	store := memory.New()
	log := testLogger()
	b := New(store, config.CircuitConfig{FailureThreshold: 1, CooldownPeriod: time.Minute}, log, nil)

	ctx := context.Background()
	b.RecordFailure(ctx, "bazar.bg", domain.BlockKindCaptcha)
	if err := b.Allow(ctx, "bazar.bg"); err == nil {
		t.Fatal("expected circuit to be open before reset")
	}

	if err := b.Reset(ctx, "bazar.bg"); err != nil {
		t.Fatalf("unexpected reset error: %v", err)
	}
	if err := b.Allow(ctx, "bazar.bg"); err != nil {
		t.Fatalf("expected circuit closed after reset, got %v", err)
	}
}

func TestBreaker_RecordFailure_PersistsBlockKind(t *testing.T) {
	store := memory.New()
	log := testLogger()
	b := New(store, config.CircuitConfig{FailureThreshold: 5, CooldownPeriod: time.Minute}, log, nil)

	ctx := context.Background()
	b.RecordFailure(ctx, "imot.bg", domain.BlockKindCloudflare)

	snap, err := store.GetCircuit(ctx, "imot.bg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.LastBlockKind != domain.BlockKindCloudflare {
		t.Fatalf("expected last_block_kind=cloudflare, got %s", snap.LastBlockKind)
	}
}

func asCircuitOpenError(err error, target **domain.CircuitOpenError) bool {
	if e, ok := err.(*domain.CircuitOpenError); ok {
		*target = e
		return true
	}
	return false
}
