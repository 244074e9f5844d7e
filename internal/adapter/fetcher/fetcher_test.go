package fetcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vasilev-labs/scrapecore/internal/adapter/circuit"
	"github.com/vasilev-labs/scrapecore/internal/adapter/ratelimit"
	"github.com/vasilev-labs/scrapecore/internal/adapter/store/memory"
	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/logger"
	"github.com/vasilev-labs/scrapecore/internal/util"
)

func testLogger() logger.Logger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	store := memory.New()
	limiter := ratelimit.New(store, config.RateLimitConfig{DefaultCapacity: 10, DefaultRefillPerSecond: 10}, testLogger())
	breaker := circuit.New(store, config.CircuitConfig{FailureThreshold: 5, CooldownPeriod: 0}, testLogger(), nil)
	f := New(limiter, breaker, nil, testLogger(), nil)

	result, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Body) != "<html>ok</html>" {
		t.Fatalf("unexpected body: %s", result.Body)
	}
	if result.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", result.StatusCode)
	}
}

func TestFetch_SoftBlockRecordsBlockedKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>Checking your browser before accessing...</body></html>"))
	}))
	defer srv.Close()

	store := memory.New()
	limiter := ratelimit.New(store, config.RateLimitConfig{DefaultCapacity: 10, DefaultRefillPerSecond: 10}, testLogger())
	breaker := circuit.New(store, config.CircuitConfig{FailureThreshold: 10, CooldownPeriod: 0}, testLogger(), nil)
	f := New(limiter, breaker, nil, testLogger(), nil)

	_, err := f.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatal("expected soft block to surface as an error")
	}
	var fetchErr *domain.FetchError
	if !asFetchError(err, &fetchErr) {
		t.Fatalf("expected *domain.FetchError, got %T: %v", err, err)
	}
	if fetchErr.Kind != domain.ErrKindBlocked {
		t.Fatalf("expected ErrKindBlocked, got %s", fetchErr.Kind)
	}

	snap, err := store.GetCircuit(context.Background(), util.DomainFromURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.LastBlockKind != domain.BlockKindCloudflare {
		t.Fatalf("expected last_block_kind=cloudflare, got %s", snap.LastBlockKind)
	}
}

func TestFetch_TooManyRequestsClassifiedAsRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	store := memory.New()
	limiter := ratelimit.New(store, config.RateLimitConfig{DefaultCapacity: 10, DefaultRefillPerSecond: 10}, testLogger())
	breaker := circuit.New(store, config.CircuitConfig{FailureThreshold: 10, CooldownPeriod: 0}, testLogger(), nil)
	f := New(limiter, breaker, nil, testLogger(), nil)

	_, err := f.Fetch(context.Background(), srv.URL)
	var fetchErr *domain.FetchError
	if !asFetchError(err, &fetchErr) {
		t.Fatalf("expected *domain.FetchError, got %T: %v", err, err)
	}
	if fetchErr.Kind != domain.ErrKindRateLimited {
		t.Fatalf("expected ErrKindRateLimited, got %s", fetchErr.Kind)
	}
}

func asFetchError(err error, target **domain.FetchError) bool {
	if e, ok := err.(*domain.FetchError); ok {
		*target = e
		return true
	}
	return false
}

func TestToUTF8_Windows1251(t *testing.T) {
	raw := []byte{0xCF, 0xF0, 0xE8, 0xEC, 0xE5, 0xF0} // "Пример" in windows-1251
	decoded, err := toUTF8(raw, "text/html; charset=windows-1251")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(decoded) != "Пример" {
		t.Fatalf("expected 'Пример', got %q", decoded)
	}
}

func TestToUTF8_StripsBOM(t *testing.T) {
	raw := append([]byte{0xEF, 0xBB, 0xBF}, []byte("hello")...)
	decoded, err := toUTF8(raw, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(decoded) != "hello" {
		t.Fatalf("expected 'hello', got %q", decoded)
	}
}

func TestToUTF8_PassthroughUnknownCharset(t *testing.T) {
	raw := []byte("already utf8")
	decoded, err := toUTF8(raw, "text/html; charset=iso-8859-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(decoded) != "already utf8" {
		t.Fatalf("expected passthrough, got %q", decoded)
	}
}
