package proxy

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

func TestFilePublisher_PublishAndRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "live_proxies.json")
	pub := NewFilePublisher(path)

	proxies := []domain.LiveProxy{
		{Host: "1.1.1.1", Protocol: domain.ProtocolSocks5, Port: 1080, Anonymity: domain.AnonymityElite},
	}
	if err := pub.Publish(context.Background(), proxies); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	read, err := ReadPublished(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(read) != 1 || read[0].Host != "1.1.1.1" {
		t.Fatalf("unexpected read result: %+v", read)
	}
}

func TestReadPublished_MissingFile(t *testing.T) {
	proxies, err := ReadPublished(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proxies != nil {
		t.Fatalf("expected nil, got %v", proxies)
	}
}

func TestPriorityStrategy_PrefersHigherScore(t *testing.T) {
	a := domain.LiveProxy{Host: "1.1.1.1", Protocol: domain.ProtocolHTTP, Port: 8080, ResponseTimeMs: 100}
	b := domain.LiveProxy{Host: "2.2.2.2", Protocol: domain.ProtocolHTTP, Port: 8080, ResponseTimeMs: 100}

	scores := map[string]domain.ProxyScore{
		a.Key(): {Key: a.Key(), Score: 1.2},
		b.Key(): {Key: b.Key(), Score: 8.5},
	}

	strategy := PriorityStrategy{}
	chosen, ok := strategy.Next([]domain.LiveProxy{a, b}, scores)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if chosen.Host != "2.2.2.2" {
		t.Fatalf("expected higher-score proxy, got %s", chosen.Host)
	}
}

func TestRoundRobinStrategy_Cycles(t *testing.T) {
	a := domain.LiveProxy{Host: "1.1.1.1"}
	b := domain.LiveProxy{Host: "2.2.2.2"}
	strategy := &RoundRobinStrategy{}

	first, _ := strategy.Next([]domain.LiveProxy{a, b}, nil)
	second, _ := strategy.Next([]domain.LiveProxy{a, b}, nil)
	third, _ := strategy.Next([]domain.LiveProxy{a, b}, nil)

	if first.Host != "1.1.1.1" || second.Host != "2.2.2.2" || third.Host != "1.1.1.1" {
		t.Fatalf("expected round-robin cycle, got %s, %s, %s", first.Host, second.Host, third.Host)
	}
}
