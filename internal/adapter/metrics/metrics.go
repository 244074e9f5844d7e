// Package metrics exposes a /metrics Prometheus endpoint on the
// orchestrator's supervisory HTTP listener: job counts, proxy pool size,
// and per-domain circuit state, alongside fetch latency. It is ambient
// observability, not the (out-of-scope) web dashboard (spec.md §4, §9).
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// Collector owns the process-wide Prometheus registry and the gauges and
// counters other adapters report into. A nil *Collector is safe to call
// methods on: every method is a no-op when the receiver is nil, so
// adapters can accept an optional collector without branching at every
// call site.
type Collector struct {
	registry *prometheus.Registry

	jobsDispatched prometheus.Counter
	jobsCompleted  prometheus.Counter
	jobsFailed     prometheus.Counter
	chunksOK       prometheus.Counter
	chunksFailed   prometheus.Counter

	proxyPoolSize *prometheus.GaugeVec
	circuitState  *prometheus.GaugeVec

	fetchDuration *prometheus.HistogramVec
	fetchTotal    *prometheus.CounterVec
}

// New builds a Collector with its own registry, so repeated calls in
// tests don't collide on prometheus's global default registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		jobsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scrapecore",
			Subsystem: "jobs",
			Name:      "dispatched_total",
			Help:      "Scrape jobs dispatched.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scrapecore",
			Subsystem: "jobs",
			Name:      "completed_total",
			Help:      "Scrape jobs that reached COMPLETE, whatever their chunk outcomes.",
		}),
		jobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scrapecore",
			Subsystem: "jobs",
			Name:      "failed_total",
			Help:      "Scrape jobs reported with any status other than COMPLETE.",
		}),
		chunksOK: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scrapecore",
			Subsystem: "chunks",
			Name:      "succeeded_total",
			Help:      "Chunk fetch+parse attempts that succeeded.",
		}),
		chunksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scrapecore",
			Subsystem: "chunks",
			Name:      "failed_total",
			Help:      "Chunk fetch+parse attempts that failed.",
		}),
		proxyPoolSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scrapecore",
			Subsystem: "proxy",
			Name:      "pool_size",
			Help:      "Number of published live proxies, by protocol.",
		}, []string{"protocol"}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "scrapecore",
			Subsystem: "circuit",
			Name:      "state",
			Help:      "Circuit breaker state per domain (0=closed, 1=half_open, 2=open).",
		}, []string{"domain"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scrapecore",
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Fetch latency by domain and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"domain", "outcome"}),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scrapecore",
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Fetch attempts by domain and outcome.",
		}, []string{"domain", "outcome"}),
	}

	reg.MustRegister(
		c.jobsDispatched, c.jobsCompleted, c.jobsFailed,
		c.chunksOK, c.chunksFailed,
		c.proxyPoolSize, c.circuitState,
		c.fetchDuration, c.fetchTotal,
	)
	return c
}

// Handler returns the http.Handler to mount at /metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) JobDispatched() {
	if c == nil {
		return
	}
	c.jobsDispatched.Inc()
}

func (c *Collector) JobCompleted(status domain.JobStatus) {
	if c == nil {
		return
	}
	if status == domain.JobComplete {
		c.jobsCompleted.Inc()
		return
	}
	c.jobsFailed.Inc()
}

func (c *Collector) ChunkResult(status domain.ChunkStatus) {
	if c == nil {
		return
	}
	if status == domain.ChunkSucceeded {
		c.chunksOK.Inc()
		return
	}
	c.chunksFailed.Inc()
}

// SetProxyPoolSize replaces the published pool-size gauge with the given
// per-protocol counts, resetting protocols that dropped to zero.
func (c *Collector) SetProxyPoolSize(byProtocol map[domain.Protocol]int) {
	if c == nil {
		return
	}
	c.proxyPoolSize.Reset()
	for protocol, count := range byProtocol {
		c.proxyPoolSize.WithLabelValues(string(protocol)).Set(float64(count))
	}
}

// circuitStateValue maps a breaker's logical state to the gauge's numeric
// encoding documented in its Help string.
func circuitStateValue(state domain.CircuitState) float64 {
	switch state {
	case domain.CircuitHalfOpen:
		return 1
	case domain.CircuitOpen:
		return 2
	default:
		return 0
	}
}

func (c *Collector) SetCircuitState(domainKey string, state domain.CircuitState) {
	if c == nil {
		return
	}
	c.circuitState.WithLabelValues(domainKey).Set(circuitStateValue(state))
}

func (c *Collector) ObserveFetch(domainKey, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.fetchTotal.WithLabelValues(domainKey, outcome).Inc()
	c.fetchDuration.WithLabelValues(domainKey, outcome).Observe(elapsed.Seconds())
}
