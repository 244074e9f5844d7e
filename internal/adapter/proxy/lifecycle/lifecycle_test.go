package lifecycle

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/vasilev-labs/scrapecore/internal/adapter/store/memory"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
)

func testLogger() logger.Logger {
	return logger.NewPlainStyledLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testScoreCfg() ScoreConfig {
	return ScoreConfig{Alpha: 1.2, Beta: 0.6, MaxFailures: 5, MinScore: 0.2}
}

type fakeSource struct{ proxies []domain.RawProxy }

func (f fakeSource) Discover(context.Context) ([]domain.RawProxy, error) { return f.proxies, nil }

type fakeProber struct{ alive map[string]bool }

func (f fakeProber) Probe(_ context.Context, proxy domain.RawProxy) (ports.ProbeResult, error) {
	if !f.alive[proxy.Key()] {
		return ports.ProbeResult{Alive: false}, nil
	}
	return ports.ProbeResult{Alive: true, ExitIP: "8.8.8.8", ResponseTimeMs: 100}, nil
}

type fakeClassifier struct{}

func (fakeClassifier) Classify(context.Context, domain.RawProxy, ports.ProbeResult, string, string) domain.Anonymity {
	return domain.AnonymityElite
}

type fakeQuality struct{}

func (fakeQuality) IsEligible(domain.LiveProxy) bool { return true }

type fakePublisher struct{ published []domain.LiveProxy }

func (f *fakePublisher) Publish(_ context.Context, proxies []domain.LiveProxy) error {
	f.published = proxies
	return nil
}

func TestRefresh_PublishesEligibleLiveProxies(t *testing.T) {
	alive := domain.RawProxy{Host: "1.1.1.1", Protocol: domain.ProtocolSocks5, Port: 1080}
	dead := domain.RawProxy{Host: "2.2.2.2", Protocol: domain.ProtocolHTTP, Port: 8080}

	source := fakeSource{proxies: []domain.RawProxy{alive, dead}}
	prober := fakeProber{alive: map[string]bool{alive.Key(): true}}
	publisher := &fakePublisher{}
	store := memory.New()

	engine := New(source, prober, fakeClassifier{}, fakeQuality{}, publisher, store, testLogger(), nil, 4, "203.0.113.1", testScoreCfg())

	live, err := engine.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(live) != 1 {
		t.Fatalf("expected 1 live proxy, got %d", len(live))
	}
	if len(publisher.published) != 1 {
		t.Fatalf("expected 1 published proxy, got %d", len(publisher.published))
	}
	if publisher.published[0].Host != "1.1.1.1" {
		t.Fatalf("expected published proxy 1.1.1.1, got %s", publisher.published[0].Host)
	}
}

func TestRefresh_RecordsProxyScoreOnSuccessAndFailure(t *testing.T) {
	alive := domain.RawProxy{Host: "1.1.1.1", Protocol: domain.ProtocolSocks5, Port: 1080}
	dead := domain.RawProxy{Host: "2.2.2.2", Protocol: domain.ProtocolHTTP, Port: 8080}

	source := fakeSource{proxies: []domain.RawProxy{alive, dead}}
	prober := fakeProber{alive: map[string]bool{alive.Key(): true}}
	publisher := &fakePublisher{}
	store := memory.New()

	engine := New(source, prober, fakeClassifier{}, fakeQuality{}, publisher, store, testLogger(), nil, 4, "203.0.113.1", testScoreCfg())
	if _, err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	aliveScore, err := store.GetProxyScore(context.Background(), alive.Key())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if aliveScore.Successes != 1 {
		t.Fatalf("expected 1 recorded success for alive proxy, got %d", aliveScore.Successes)
	}

	deadScore, err := store.GetProxyScore(context.Background(), dead.Key())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deadScore.Failures != 1 {
		t.Fatalf("expected 1 recorded failure for dead proxy, got %d", deadScore.Failures)
	}
}

func TestRefresh_DeadScoreExcludesProxyFromLiveSet(t *testing.T) {
	alive := domain.RawProxy{Host: "1.1.1.1", Protocol: domain.ProtocolSocks5, Port: 1080}

	source := fakeSource{proxies: []domain.RawProxy{alive}}
	prober := fakeProber{alive: map[string]bool{alive.Key(): true}}
	publisher := &fakePublisher{}
	store := memory.New()

	cfg := testScoreCfg()
	if err := store.PutProxyScore(context.Background(), domain.ProxyScore{Key: alive.Key(), Score: 0, Failures: cfg.MaxFailures}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	engine := New(source, prober, fakeClassifier{}, fakeQuality{}, publisher, store, testLogger(), nil, 4, "203.0.113.1", cfg)
	live, err := engine.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected a score-dead proxy to be excluded, got %d live", len(live))
	}
}
