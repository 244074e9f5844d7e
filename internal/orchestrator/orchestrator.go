// Package orchestrator wires every adapter together and owns the process
// lifecycle: the proxy lifecycle engine's refresh loop, the rotating proxy
// endpoint, the broker's worker pool, checkpoint flushing, and the
// supervisory /metrics listener (spec.md §4.13). It mirrors the teacher's
// Application type: a thin composition root with Start/Stop, not a place
// for business logic.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vasilev-labs/scrapecore/internal/adapter/broker/memory"
	"github.com/vasilev-labs/scrapecore/internal/adapter/broker/redisbroker"
	"github.com/vasilev-labs/scrapecore/internal/adapter/checkpoint"
	"github.com/vasilev-labs/scrapecore/internal/adapter/circuit"
	"github.com/vasilev-labs/scrapecore/internal/adapter/fetcher"
	"github.com/vasilev-labs/scrapecore/internal/adapter/listingstore"
	"github.com/vasilev-labs/scrapecore/internal/adapter/metrics"
	"github.com/vasilev-labs/scrapecore/internal/adapter/parser"
	"github.com/vasilev-labs/scrapecore/internal/adapter/proxy"
	"github.com/vasilev-labs/scrapecore/internal/adapter/proxy/anonymity"
	"github.com/vasilev-labs/scrapecore/internal/adapter/proxy/lifecycle"
	"github.com/vasilev-labs/scrapecore/internal/adapter/proxy/quality"
	"github.com/vasilev-labs/scrapecore/internal/adapter/proxy/rotator"
	"github.com/vasilev-labs/scrapecore/internal/adapter/proxy/subprocess"
	"github.com/vasilev-labs/scrapecore/internal/adapter/proxy/validator"
	"github.com/vasilev-labs/scrapecore/internal/adapter/ratelimit"
	memstore "github.com/vasilev-labs/scrapecore/internal/adapter/store/memory"
	redisstore "github.com/vasilev-labs/scrapecore/internal/adapter/store/redis"
	"github.com/vasilev-labs/scrapecore/internal/adapter/scrape/aggregator"
	"github.com/vasilev-labs/scrapecore/internal/adapter/scrape/dispatcher"
	"github.com/vasilev-labs/scrapecore/internal/adapter/scrape/worker"
	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
	"github.com/vasilev-labs/scrapecore/internal/router"
	"github.com/vasilev-labs/scrapecore/internal/util"
	"github.com/vasilev-labs/scrapecore/pkg/container"
	"github.com/vasilev-labs/scrapecore/pkg/eventbus"
	"github.com/vasilev-labs/scrapecore/pkg/format"
	"github.com/vasilev-labs/scrapecore/pkg/nerdstats"
	"github.com/vasilev-labs/scrapecore/pkg/profiler"
)

// Orchestrator implements ports.Orchestrator, composing every adapter per
// cfg and running their background loops until Stop is called.
type Orchestrator struct {
	cfg *config.Config
	log logger.Logger

	startTime time.Time

	store        ports.CoordinationStore
	broker       ports.TaskBroker
	listingStore ports.ListingStore
	checkpoint   *checkpoint.Manager
	metrics      *metrics.Collector

	dispatcher *dispatcher.Dispatcher
	aggregator *aggregator.Aggregator
	breaker    ports.CircuitBreaker

	scrapeWorker ports.ScrapeWorker

	lifecycleEngine *lifecycle.Engine
	rotatorEndpoint *rotator.Endpoint
	proxyEvents     *eventbus.EventBus[[]domain.LiveProxy]

	metricsServer *http.Server

	proxyReady   chan struct{}
	proxyReadyOnce sync.Once

	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New composes every adapter from cfg. It performs no I/O beyond opening
// storage connections (Redis dial, Postgres connect) — background loops
// only start once Start is called.
func New(cfg *config.Config, log logger.Logger) (*Orchestrator, error) {
	collector := metrics.New()

	store, err := buildStore(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("building coordination store: %w", err)
	}

	broker, err := buildBroker(cfg.Broker)
	if err != nil {
		return nil, fmt.Errorf("building task broker: %w", err)
	}

	listingStore, err := buildListingStore(cfg.ListingStore)
	if err != nil {
		return nil, fmt.Errorf("building listing store: %w", err)
	}

	checkpointMgr := checkpoint.New(cfg.Checkpoint, log)
	limiter := ratelimit.New(store, cfg.RateLimit, log)
	breaker := circuit.New(store, cfg.Circuit, log, collector)

	proxyDialer := fixedProxyDialer{addr: cfg.Proxy.RotatorListenAddr}
	fetch := fetcher.New(limiter, breaker, proxyDialer, log, collector)

	registry := parser.New()
	registry.Register(parser.ImotBG{})
	registry.Register(parser.BazarBG{})

	scrapeWorker := worker.New(fetch, registry, checkpointMgr, log)
	scrapeDispatcher := dispatcher.New(store, broker, fetch, registry, cfg.Sites, collector)
	scrapeAggregator := aggregator.New(store, broker, listingStore, checkpointMgr, log, collector)

	rawSource := buildRawSource(cfg.Proxy)
	liveness := buildLivenessProber(cfg.Proxy)
	publisher := proxy.NewFilePublisher(cfg.Proxy.PublishPath)
	scoreCfg := lifecycle.ScoreConfig{
		Alpha:       cfg.Proxy.Alpha,
		Beta:        cfg.Proxy.Beta,
		MaxFailures: cfg.Proxy.MaxFailures,
		MinScore:    cfg.Proxy.MinScore,
	}
	engine := lifecycle.New(rawSource, liveness, anonymity.New(), quality.New(cfg.Proxy.RealIP), publisher, store, log, collector, cfg.Proxy.ProbeConcurrency, cfg.Proxy.RealIP, scoreCfg)

	strategy := buildRotationStrategy(cfg.Proxy.RotationStrategy)
	rotatorEndpoint := rotator.New(cfg.Proxy.RotatorListenAddr, strategy, store, log, cfg.Proxy.MaxConnsPerSecond)
	proxyEvents := eventbus.New[[]domain.LiveProxy]()

	return &Orchestrator{
		cfg:             cfg,
		log:             log,
		startTime:       time.Now(),
		store:           store,
		broker:          broker,
		listingStore:    listingStore,
		checkpoint:      checkpointMgr,
		metrics:         collector,
		dispatcher:      scrapeDispatcher,
		aggregator:      scrapeAggregator,
		breaker:         breaker,
		scrapeWorker:    scrapeWorker,
		lifecycleEngine: engine,
		rotatorEndpoint: rotatorEndpoint,
		proxyEvents:     proxyEvents,
		proxyReady:      make(chan struct{}),
		wg:              sync.WaitGroup{},
	}, nil
}

// Start launches every background loop: the metrics listener, the
// checkpoint flusher, the proxy refresh loop, the rotator, and the broker's
// worker pool. It returns once everything has been launched; failures in
// background loops are logged rather than returned, matching the teacher's
// Application.Start (errors surface on an internal channel, not a blocking
// call).
func (o *Orchestrator) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.startMetricsServer()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.checkpoint.StartPeriodicFlush(runCtx)
	}()

	if err := o.rotatorEndpoint.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("starting rotator endpoint: %w", err)
	}

	// proxyEvents never closes its subscriber channel (it relies on GC once
	// unsubscribed, to avoid send-on-closed-channel panics), so this loop
	// must select on runCtx itself rather than range over the channel.
	proxyUpdates, unsubscribe := o.proxyEvents.Subscribe(runCtx)
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-runCtx.Done():
				return
			case live := <-proxyUpdates:
				o.rotatorEndpoint.Reload(live)
			}
		}
	}()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.runProxyRefreshLoop(runCtx)
	}()

	for i := 0; i < o.cfg.Broker.WorkerCount; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.broker.Consume(runCtx, o.scrapeWorker.Process); err != nil && !errors.Is(err, context.Canceled) {
				o.log.Warn("broker consume loop exited", "error", err)
			}
		}()
	}

	o.log.Info("orchestrator started",
		"metrics_addr", o.cfg.Engineering.MetricsAddr,
		"rotator_addr", o.cfg.Proxy.RotatorListenAddr,
		"workers", o.cfg.Broker.WorkerCount,
		"containerised", container.IsContainerised())
	return nil
}

// runProxyRefreshLoop runs one Refresh immediately, then every
// Proxy.RefreshInterval, reloading the rotator's candidate set and
// signalling WaitForProxies once the first non-empty publish succeeds.
func (o *Orchestrator) runProxyRefreshLoop(ctx context.Context) {
	o.refreshProxies(ctx)

	interval := o.cfg.Proxy.RefreshInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refreshProxies(ctx)
		}
	}
}

func (o *Orchestrator) refreshProxies(ctx context.Context) {
	live, err := o.lifecycleEngine.Refresh(ctx)
	if err != nil {
		o.log.Warn("proxy refresh failed", "error", err)
		return
	}
	o.proxyEvents.Publish(live)
	if len(live) > 0 {
		o.proxyReadyOnce.Do(func() { close(o.proxyReady) })
	}
}

// WaitForProxies blocks until the proxy lifecycle engine has published at
// least one live proxy, or ctx is cancelled first.
func (o *Orchestrator) WaitForProxies(ctx context.Context) error {
	select {
	case <-o.proxyReady:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels every background loop, shuts down the metrics listener and
// the rotator, and closes the broker and coordination store.
func (o *Orchestrator) Stop(ctx context.Context) error {
	if o.cancel != nil {
		o.cancel()
	}
	o.proxyEvents.Shutdown()

	if err := o.rotatorEndpoint.Stop(ctx); err != nil {
		o.log.Warn("rotator shutdown error", "error", err)
	}

	if o.metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 5*time.Second)
		defer shutdownCancel()
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.log.Warn("metrics server shutdown error", "error", err)
		}
	}

	o.wg.Wait()

	if err := o.broker.Close(); err != nil {
		o.log.Warn("broker close error", "error", err)
	}
	if err := o.listingStore.Close(); err != nil {
		o.log.Warn("listing store close error", "error", err)
	}
	return o.store.Close()
}

func (o *Orchestrator) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if !o.cfg.Engineering.ShowNerdStats {
		_, _ = w.Write([]byte("ok"))
		return
	}
	stats := nerdstats.Snapshot(o.startTime)
	fmt.Fprintf(w, "ok\nheap_alloc=%s uptime=%s goroutines=%d (%s) memory_pressure=%s\n",
		format.Bytes(stats.HeapAlloc), format.Duration(stats.Uptime),
		stats.NumGoroutines, stats.GetGoroutineHealthStatus(), stats.GetMemoryPressure())
}

func (o *Orchestrator) startMetricsServer() {
	mux := http.NewServeMux()
	routes := router.NewRouteRegistry(o.log)
	routes.Register("/metrics", o.metrics.Handler().ServeHTTP, "Prometheus metrics")
	routes.Register("/healthz", o.healthzHandler, "liveness probe")
	routes.WireUp(mux)

	if o.cfg.Engineering.EnablePprof {
		profiler.Register(mux)
	}

	var handler http.Handler = mux
	if trustedCIDRs, err := util.ParseTrustedCIDRs(o.cfg.Engineering.TrustedCIDRs); err != nil {
		o.log.Error("invalid engineering.trusted_cidrs, metrics server left unrestricted", "error", err)
	} else if len(trustedCIDRs) > 0 {
		handler = requireTrustedIP(trustedCIDRs, mux)
	}

	o.metricsServer = &http.Server{
		Addr:    o.cfg.Engineering.MetricsAddr,
		Handler: handler,
	}

	go func() {
		if err := o.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.log.Error("metrics server error", "error", err)
		}
	}()
}

// requireTrustedIP restricts /metrics, /healthz and /debug/pprof/* to
// callers whose remote address falls within trustedCIDRs.
func requireTrustedIP(trustedCIDRs []*net.IPNet, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ip := net.ParseIP(host)
		if ip == nil || !util.IsIPTrusted(ip, trustedCIDRs) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Dispatcher exposes the ScrapeDispatcher for CLI commands that submit
// jobs (spec.md §6 `run`).
func (o *Orchestrator) Dispatcher() ports.ScrapeDispatcher { return o.dispatcher }

// Aggregator exposes the ScrapeAggregator for CLI commands that await a
// dispatched job's completion.
func (o *Orchestrator) Aggregator() ports.ScrapeAggregator { return o.aggregator }

// Breaker exposes the CircuitBreaker for the `reset-circuit` CLI command.
func (o *Orchestrator) Breaker() ports.CircuitBreaker { return o.breaker }

// Store exposes the CoordinationStore for the `status` CLI command.
func (o *Orchestrator) Store() ports.CoordinationStore { return o.store }

func buildStore(cfg config.StoreConfig) (ports.CoordinationStore, error) {
	if cfg.Backend == "redis" {
		return redisstore.New(cfg.Address, cfg.Password, cfg.DB, cfg.DialTimeout), nil
	}
	return memstore.New(), nil
}

func buildBroker(cfg config.BrokerConfig) (ports.TaskBroker, error) {
	if cfg.Backend == "redis" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Address})
		return redisbroker.New(client, cfg.QueueKey), nil
	}
	depth := cfg.WorkerCount * 64
	if depth <= 0 {
		depth = 256
	}
	return memory.New(depth), nil
}

func buildListingStore(cfg config.ListingStoreConfig) (ports.ListingStore, error) {
	if cfg.Backend == "postgres" {
		return listingstore.NewPostgresStore(cfg.DSN)
	}
	return listingstore.NewMemoryStore(), nil
}

func buildRawSource(cfg config.ProxyConfig) ports.RawProxySource {
	return subprocess.NewRawSource(cfg.RawSourceCommand)
}

func buildLivenessProber(cfg config.ProxyConfig) ports.LivenessProber {
	if cfg.LivenessProbeCommand != "" {
		return subprocessProber{probe: subprocess.NewLivenessProbe(cfg.LivenessProbeCommand)}
	}
	return validator.New(cfg.JudgeURLs, cfg.ProbeTimeout)
}

// subprocessProber adapts subprocess.LivenessProbe's (alive, exitIP,
// responseMs) result to ports.LivenessProber. The subprocess reports no
// body or headers, so those ProbeResult fields stay empty.
type subprocessProber struct {
	probe *subprocess.LivenessProbe
}

func (p subprocessProber) Probe(ctx context.Context, proxy domain.RawProxy) (ports.ProbeResult, error) {
	alive, exitIP, responseMs, err := p.probe.Probe(ctx, proxy)
	return ports.ProbeResult{Alive: alive, ExitIP: exitIP, ResponseTimeMs: responseMs}, err
}

func buildRotationStrategy(name string) ports.RotationStrategy {
	switch name {
	case "random":
		return proxy.RandomStrategy{}
	case "round_robin":
		return &proxy.RoundRobinStrategy{}
	default:
		return proxy.PriorityStrategy{}
	}
}

// fixedProxyDialer always points the Fetcher at the rotator's local listen
// address, so every outbound request flows through the single egress
// point the rotator maintains (spec.md §4.7) instead of dialing proxies
// directly from the Fetcher.
type fixedProxyDialer struct {
	addr string
}

func (d fixedProxyDialer) CurrentProxyURL() (string, bool) {
	if d.addr == "" {
		return "", false
	}
	return "http://" + d.addr, true
}
