// Package rotator implements ports.RotatingProxyEndpoint: a local TCP
// listener that forwards each inbound connection through a proxy selected
// by a RotationStrategy. Reload swaps in the candidate set it is handed (the
// orchestrator passes each proxy refresh result) without dropping in-flight
// connections (spec.md §4.7).
package rotator

import (
	"context"
	"io"
	"net"
	"net/url"
	"sync"

	"golang.org/x/time/rate"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
	"github.com/vasilev-labs/scrapecore/pkg/pool"
)

// bufPool reuses the relay buffers between connections, since the
// endpoint may shuttle many short-lived connections per second.
var bufPool = pool.NewLitePool(func() []byte { return make([]byte, 32*1024) })

// Endpoint implements ports.RotatingProxyEndpoint.
type Endpoint struct {
	addr     string
	strategy ports.RotationStrategy
	store    ports.CoordinationStore
	log      logger.Logger

	// connLimiter caps how fast the endpoint dials new upstream proxies,
	// so a burst of Fetcher requests can't hammer a single rotation
	// candidate the moment it's chosen.
	connLimiter *rate.Limiter

	mu         sync.RWMutex
	candidates []domain.LiveProxy

	listener net.Listener
	wg       sync.WaitGroup
}

// New builds an Endpoint listening on addr and selecting a proxy per
// connection via strategy. Proxy scores are read from store for
// priority-based strategies. maxConnsPerSecond <= 0 disables throttling.
func New(addr string, strategy ports.RotationStrategy, store ports.CoordinationStore, log logger.Logger, maxConnsPerSecond float64) *Endpoint {
	var limiter *rate.Limiter
	if maxConnsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(maxConnsPerSecond), int(maxConnsPerSecond)+1)
	}
	return &Endpoint{addr: addr, strategy: strategy, store: store, log: log, connLimiter: limiter}
}

// Reload replaces the candidate proxy set used for future connections;
// in-flight connections are unaffected.
func (e *Endpoint) Reload(proxies []domain.LiveProxy) {
	e.mu.Lock()
	e.candidates = proxies
	e.mu.Unlock()
	e.log.InfoWithCount("rotator candidate set reloaded", len(proxies))
}

func (e *Endpoint) snapshot() []domain.LiveProxy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.LiveProxy, len(e.candidates))
	copy(out, e.candidates)
	return out
}

// Start begins accepting connections on addr, forwarding each through a
// proxy chosen by strategy, until ctx is cancelled or Stop is called.
func (e *Endpoint) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", e.addr)
	if err != nil {
		return &domain.StoreError{Op: "rotator_listen", Cause: err}
	}
	e.listener = listener

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				e.log.Warn("rotator accept failed", "error", err)
				return
			}
			e.wg.Add(1)
			go e.handle(ctx, conn)
		}
	}()

	return nil
}

func (e *Endpoint) handle(ctx context.Context, clientConn net.Conn) {
	defer e.wg.Done()
	defer clientConn.Close()

	if e.connLimiter != nil {
		if err := e.connLimiter.Wait(ctx); err != nil {
			return
		}
	}

	candidates := e.snapshot()
	scores := e.loadScores(ctx, candidates)

	chosen, ok := e.strategy.Next(candidates, scores)
	if !ok {
		e.log.Warn("rotator has no candidate proxies, dropping connection")
		return
	}

	rawURL := domain.RawProxy{Host: chosen.Host, Protocol: chosen.Protocol, Port: chosen.Port}.URL()
	proxyURL, err := url.Parse(rawURL)
	if err != nil {
		e.log.Warn("rotator failed to parse proxy URL", "proxy", chosen.Key(), "error", err)
		return
	}

	upstream, err := net.Dial("tcp", proxyURL.Host)
	if err != nil {
		e.log.Warn("rotator failed to dial upstream proxy", "proxy", chosen.Key(), "error", err)
		return
	}
	defer upstream.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		buf := bufPool.Get()
		defer bufPool.Put(buf)
		io.CopyBuffer(upstream, clientConn, buf)
	}()
	go func() {
		defer wg.Done()
		buf := bufPool.Get()
		defer bufPool.Put(buf)
		io.CopyBuffer(clientConn, upstream, buf)
	}()
	wg.Wait()
}

func (e *Endpoint) loadScores(ctx context.Context, candidates []domain.LiveProxy) map[string]domain.ProxyScore {
	scores := make(map[string]domain.ProxyScore, len(candidates))
	for _, c := range candidates {
		score, err := e.store.GetProxyScore(ctx, c.Key())
		if err != nil {
			continue
		}
		scores[c.Key()] = score
	}
	return scores
}

// Stop closes the listener and waits for in-flight connections to finish.
func (e *Endpoint) Stop(_ context.Context) error {
	if e.listener != nil {
		_ = e.listener.Close()
	}
	e.wg.Wait()
	return nil
}
