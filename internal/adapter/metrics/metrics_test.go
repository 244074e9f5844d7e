package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

func TestCollector_ExposesRegisteredMetrics(t *testing.T) {
	c := New()
	c.JobDispatched()
	c.JobCompleted(domain.JobComplete)
	c.ChunkResult(domain.ChunkSucceeded)
	c.SetProxyPoolSize(map[domain.Protocol]int{domain.ProtocolSocks5: 3})
	c.SetCircuitState("imot.bg", domain.CircuitOpen)
	c.ObserveFetch("imot.bg", "success", 120*time.Millisecond)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	c.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	for _, want := range []string{
		"scrapecore_jobs_dispatched_total 1",
		"scrapecore_jobs_completed_total 1",
		"scrapecore_chunks_succeeded_total 1",
		`scrapecore_proxy_pool_size{protocol="socks5"} 3`,
		`scrapecore_circuit_state{domain="imot.bg"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics output to contain %q, got:\n%s", want, body)
		}
	}
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	c.JobDispatched()
	c.JobCompleted(domain.JobFailed)
	c.ChunkResult(domain.ChunkFailed)
	c.SetProxyPoolSize(nil)
	c.SetCircuitState("x", domain.CircuitClosed)
	c.ObserveFetch("x", "error", time.Millisecond)
	if c.Handler() == nil {
		t.Fatal("expected a non-nil handler even on a nil collector")
	}
}
