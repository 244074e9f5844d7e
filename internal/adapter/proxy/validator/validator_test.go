package validator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// newPlainHTTPProxy starts a minimal forward proxy: for plain HTTP, Go's
// http.Transport sends the proxy an absolute-URI request line, so r.URL is
// already the judge's full URL and can be round-tripped directly.
func newPlainHTTPProxy(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, err := http.DefaultTransport.RoundTrip(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		for k, vs := range resp.Header {
			for _, v := range vs {
				w.Header().Add(k, v)
			}
		}
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}))
}

func proxyFromServerURL(t *testing.T, raw string) domain.RawProxy {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parsing proxy server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parsing proxy server port: %v", err)
	}
	return domain.RawProxy{Host: u.Hostname(), Port: port, Protocol: "http"}
}

func TestProbe_AliveJudgeReturnsExitIPAndHeaders(t *testing.T) {
	judge := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"origin":"203.0.113.9","headers":{"Via":"1.1 squid"}}`))
	}))
	defer judge.Close()

	proxy := newPlainHTTPProxy(t)
	defer proxy.Close()

	v := New([]string{judge.URL}, 2*time.Second)
	result, err := v.Probe(context.Background(), proxyFromServerURL(t, proxy.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Alive {
		t.Fatal("expected Alive=true")
	}
	if result.ExitIP != "203.0.113.9" {
		t.Fatalf("expected exit IP 203.0.113.9, got %q", result.ExitIP)
	}
	if result.Headers["Via"] != "1.1 squid" {
		t.Fatalf("expected Via header to round-trip, got %+v", result.Headers)
	}
}

func TestProbe_NoJudgeURLsReturnsProxyDeadError(t *testing.T) {
	v := New(nil, time.Second)
	_, err := v.Probe(context.Background(), domain.RawProxy{Host: "1.2.3.4", Port: 8080, Protocol: "http"})
	if err == nil {
		t.Fatal("expected error when no judge URLs configured")
	}
	fetchErr, ok := err.(*domain.FetchError)
	if !ok || fetchErr.Kind != domain.ErrKindProxyDead {
		t.Fatalf("expected *domain.FetchError{Kind: ErrKindProxyDead}, got %v", err)
	}
}

func TestProbe_UnreachableProxyReturnsNotAlive(t *testing.T) {
	v := New([]string{"http://127.0.0.1:1"}, 200*time.Millisecond)
	result, err := v.Probe(context.Background(), domain.RawProxy{Host: "127.0.0.1", Port: 1, Protocol: "http"})
	if err != nil {
		t.Fatalf("unreachable proxy should not surface a pipeline error, got %v", err)
	}
	if result.Alive {
		t.Fatal("expected Alive=false for an unreachable proxy")
	}
}
