package subprocess

import (
	"context"
	"testing"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

func TestRawSource_ParsesStdoutLines(t *testing.T) {
	source := NewRawSource("printf", "socks5://1.2.3.4:1080\nhttp://5.6.7.8:8080\n")
	proxies, err := source.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(proxies) != 2 {
		t.Fatalf("expected 2 proxies, got %d: %+v", len(proxies), proxies)
	}
	if proxies[0].Protocol != domain.ProtocolSocks5 || proxies[0].Host != "1.2.3.4" || proxies[0].Port != 1080 {
		t.Fatalf("unexpected first proxy: %+v", proxies[0])
	}
}

func TestRawSource_NoCommandConfigured(t *testing.T) {
	source := NewRawSource("")
	proxies, err := source.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if proxies != nil {
		t.Fatalf("expected nil, got %v", proxies)
	}
}

func TestParseProxyLine_Malformed(t *testing.T) {
	if _, err := parseProxyLine("not-a-proxy-url"); err == nil {
		t.Fatal("expected error for malformed proxy line")
	}
}

func TestLivenessProbe_ParsesJSONResult(t *testing.T) {
	probe := NewLivenessProbe("sh", "-c", `echo '{"alive": true, "exit_ip": "9.9.9.9", "response_time_ms": 42}'`)
	alive, exitIP, responseMs, err := probe.Probe(context.Background(), domain.RawProxy{Host: "1.1.1.1", Protocol: domain.ProtocolHTTP, Port: 8080})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !alive || exitIP != "9.9.9.9" || responseMs != 42 {
		t.Fatalf("unexpected result: alive=%v exitIP=%s responseMs=%d", alive, exitIP, responseMs)
	}
}
