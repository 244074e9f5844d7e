// Package lifecycle implements ports.ProxyLifecycleEngine: one discovery
// run chains RawProxySource -> LivenessProber -> AnonymityClassifier ->
// QualityProber -> ProxyPublisher end to end (spec.md §4.6, §4.7).
package lifecycle

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/adapter/metrics"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

func timeNow() time.Time { return time.Now() }

// Engine implements ports.ProxyLifecycleEngine.
type Engine struct {
	source      ports.RawProxySource
	prober      ports.LivenessProber
	classifier  ports.AnonymityClassifier
	quality     ports.QualityProber
	publisher   ports.ProxyPublisher
	store       ports.CoordinationStore
	log         logger.Logger
	metrics     *metrics.Collector
	concurrency int
	realIP      string
	scoreCfg    ScoreConfig

	exitIPMu   sync.Mutex
	lastExitIP map[string]string
}

// ScoreConfig carries the multiplicative ProxyScore tuning from
// config.ProxyConfig (spec.md §3): Alpha/Beta decide how fast a proxy's
// score rises or decays, MaxFailures/MinScore decide when it's dead.
type ScoreConfig struct {
	Alpha       float64
	Beta        float64
	MaxFailures int
	MinScore    float64
}

// New builds an Engine wiring every proxy-lifecycle collaborator together.
// concurrency bounds how many proxies are probed at once. realIP is the
// operator's real IPv4, used both for the /24 eligibility check and for the
// AnonymityClassifier's body-leak test (spec.md §4.6). collector may be
// nil, in which case the pool-size gauge isn't reported.
func New(source ports.RawProxySource, prober ports.LivenessProber, classifier ports.AnonymityClassifier, quality ports.QualityProber, publisher ports.ProxyPublisher, store ports.CoordinationStore, log logger.Logger, collector *metrics.Collector, concurrency int, realIP string, scoreCfg ScoreConfig) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		source:      source,
		prober:      prober,
		classifier:  classifier,
		quality:     quality,
		publisher:   publisher,
		store:       store,
		log:         log,
		metrics:     collector,
		concurrency: concurrency,
		realIP:      realIP,
		scoreCfg:    scoreCfg,
		lastExitIP:  make(map[string]string),
	}
}

// Refresh runs discovery, probes every candidate concurrently (bounded by
// Engine.concurrency), classifies and quality-checks the survivors, and
// publishes the final eligible set. It returns every proxy that passed
// liveness and was not found dead by its score update, whether or not it
// passed the quality check and ended up published, so callers can log the
// full funnel.
func (e *Engine) Refresh(ctx context.Context) ([]domain.LiveProxy, error) {
	raw, err := e.source.Discover(ctx)
	if err != nil {
		return nil, err
	}
	e.log.Info("proxy discovery complete", "candidates", len(raw))

	live := e.probeAll(ctx, raw)
	e.log.InfoWithCount("proxies passed liveness", len(live))

	eligible := make([]domain.LiveProxy, 0, len(live))
	for _, p := range live {
		if e.quality.IsEligible(p) {
			eligible = append(eligible, p)
		}
	}
	e.log.InfoWithCount("proxies eligible for publish", len(eligible))

	sortByPreference(eligible)

	if err := e.publisher.Publish(ctx, eligible); err != nil {
		return live, err
	}
	e.metrics.SetProxyPoolSize(countByProtocol(eligible))

	return live, nil
}

func (e *Engine) probeAll(ctx context.Context, candidates []domain.RawProxy) []domain.LiveProxy {
	sem := make(chan struct{}, e.concurrency)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var live []domain.LiveProxy

	for _, candidate := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(proxy domain.RawProxy) {
			defer wg.Done()
			defer func() { <-sem }()

			probe, err := e.prober.Probe(ctx, proxy)
			if err != nil {
				e.log.Warn("liveness probe error", "proxy", proxy.Key(), "error", err)
				return
			}
			if !probe.Alive {
				e.recordFailure(ctx, proxy.Key())
				return
			}

			if dead := e.recordSuccess(ctx, proxy.Key(), probe.ResponseTimeMs); dead {
				e.log.Debug("proxy dead after score update, dropping from live set", "proxy", proxy.Key())
				return
			}

			previousExitIP := e.previousExitIP(proxy.Key())
			anon := e.classifier.Classify(ctx, proxy, probe, e.realIP, previousExitIP)
			if probe.ExitIP != "" {
				e.setPreviousExitIP(proxy.Key(), probe.ExitIP)
			}

			mu.Lock()
			live = append(live, domain.LiveProxy{
				Protocol:       proxy.Protocol,
				Host:           proxy.Host,
				Port:           proxy.Port,
				ExitIP:         probe.ExitIP,
				Anonymity:      anon,
				ResponseTimeMs: probe.ResponseTimeMs,
			})
			mu.Unlock()
		}(candidate)
	}

	wg.Wait()
	return live
}

func (e *Engine) previousExitIP(key string) string {
	e.exitIPMu.Lock()
	defer e.exitIPMu.Unlock()
	return e.lastExitIP[key]
}

func (e *Engine) setPreviousExitIP(key, exitIP string) {
	e.exitIPMu.Lock()
	defer e.exitIPMu.Unlock()
	e.lastExitIP[key] = exitIP
}

// recordSuccess updates key's ProxyScore on a successful probe (spec.md
// §3's multiplicative model) and reports whether the proxy is now dead.
func (e *Engine) recordSuccess(ctx context.Context, key string, responseMs int64) bool {
	score, err := e.store.GetProxyScore(ctx, key)
	if err != nil {
		e.log.Warn("failed to load proxy score", "proxy", key, "error", err)
		score = domain.NewProxyScore(key)
	}
	score = score.RecordSuccess(e.scoreCfg.Alpha, responseMs, timeNow())
	if err := e.store.PutProxyScore(ctx, score); err != nil {
		e.log.Warn("failed to persist proxy score", "proxy", key, "error", err)
	}
	return score.IsDead(e.scoreCfg.MaxFailures, e.scoreCfg.MinScore)
}

// recordFailure updates key's ProxyScore on a failed probe and, once the
// proxy crosses MaxFailures/MinScore, kills its score outright so it drops
// out of rotation consideration immediately (spec.md §4.5).
func (e *Engine) recordFailure(ctx context.Context, key string) {
	score, err := e.store.GetProxyScore(ctx, key)
	if err != nil {
		e.log.Warn("failed to load proxy score", "proxy", key, "error", err)
		score = domain.NewProxyScore(key)
	}
	score = score.RecordFailure(e.scoreCfg.Beta, timeNow())
	if score.IsDead(e.scoreCfg.MaxFailures, e.scoreCfg.MinScore) {
		score = score.Kill(timeNow())
	}
	if err := e.store.PutProxyScore(ctx, score); err != nil {
		e.log.Warn("failed to persist proxy score", "proxy", key, "error", err)
	}
}

func countByProtocol(proxies []domain.LiveProxy) map[domain.Protocol]int {
	counts := make(map[domain.Protocol]int)
	for _, p := range proxies {
		counts[p.Protocol]++
	}
	return counts
}

// sortByPreference orders live proxies by response time, falling back to
// the protocol preference order (socks5 > https > http > socks4) recovered
// from original_source/proxies/mubeng_manager.py when two proxies are
// within 50ms of each other.
func sortByPreference(proxies []domain.LiveProxy) {
	const tieWindowMs = 50
	sort.SliceStable(proxies, func(i, j int) bool {
		diff := proxies[i].ResponseTimeMs - proxies[j].ResponseTimeMs
		if diff < -tieWindowMs || diff > tieWindowMs {
			return proxies[i].ResponseTimeMs < proxies[j].ResponseTimeMs
		}
		return domain.ProtocolRank(proxies[i].Protocol) < domain.ProtocolRank(proxies[j].Protocol)
	})
}
