// Package fetcher implements ports.Fetcher: rate-limit and circuit-breaker
// gated HTTP retrieval through the currently selected proxy, with bounded
// exponential backoff and jitter on retry (spec.md §4.1, §4.5), and a
// hand-rolled encoding step that strips a UTF-8 BOM and decodes a body
// declared as windows-1251 to UTF-8; a body in any other declared charset
// is returned unchanged (spec.md §9).
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/adapter/metrics"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/logger"
	"github.com/vasilev-labs/scrapecore/internal/util"
)

const (
	maxResponseBytes = 10 * 1024 * 1024
	maxAttempts      = 5
	backoffBase      = 0.5
	backoffMultiplier = 2.0
	backoffMaxDelay  = 30 * time.Second
	backoffJitterMax = 500
	defaultUserAgent = "scrapecore/1.0 (+https://github.com/vasilev-labs/scrapecore)"
)

// Renderer is a pluggable stealth-fetch seam matching
// original_source/websites/scrapling_base.py's RenderBrowser mode. The
// default implementation is a no-op; a real headless-browser renderer is
// out of scope for this repository.
type Renderer interface {
	Render(ctx context.Context, url string) (ports.FetchResult, error)
}

// NoopRenderer never renders and always reports itself unsupported, so
// callers that check for a configured Renderer can skip it cleanly.
type NoopRenderer struct{}

func (NoopRenderer) Render(_ context.Context, _ string) (ports.FetchResult, error) {
	return ports.FetchResult{}, fmt.Errorf("render browser mode not implemented")
}

// ProxyDialer resolves the currently selected outbound proxy for a request,
// matching RotatingProxyEndpoint's role as the single egress point
// (spec.md §4.7).
type ProxyDialer interface {
	CurrentProxyURL() (string, bool)
}

// Fetcher implements ports.Fetcher.
type Fetcher struct {
	client      *http.Client
	limiter     ports.RateLimiter
	breaker     ports.CircuitBreaker
	proxyDialer ProxyDialer
	log         logger.Logger
	metrics     *metrics.Collector
}

// New builds a Fetcher that gates every request through limiter and
// breaker, keyed by the request's host, and routes through proxyDialer's
// current proxy when one is configured. collector may be nil, in which
// case fetch latency isn't reported.
func New(limiter ports.RateLimiter, breaker ports.CircuitBreaker, proxyDialer ProxyDialer, log logger.Logger, collector *metrics.Collector) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				IdleConnTimeout:     60 * time.Second,
				MaxIdleConnsPerHost: 5,
			},
		},
		limiter:     limiter,
		breaker:     breaker,
		proxyDialer: proxyDialer,
		log:         log,
		metrics:     collector,
	}
}

// Fetch retries up to maxAttempts times, gated on the target host's rate
// limiter and circuit breaker, with exponential backoff plus jitter between
// attempts (spec.md §4.1).
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (ports.FetchResult, error) {
	host := util.DomainFromURL(rawURL)
	if host == "" {
		return ports.FetchResult{}, &domain.FetchError{URL: rawURL, Kind: domain.ErrKindNetwork, Cause: fmt.Errorf("invalid URL %q", rawURL)}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := f.breaker.Allow(ctx, host); err != nil {
			return ports.FetchResult{}, err
		}
		if err := f.limiter.Allow(ctx, host); err != nil {
			return ports.FetchResult{}, &domain.FetchError{URL: rawURL, Domain: host, Kind: domain.ErrKindRateLimited, Attempt: attempt, Cause: err}
		}

		attemptStart := time.Now()
		result, err := f.doRequest(ctx, rawURL)
		if err == nil {
			f.breaker.RecordSuccess(ctx, host)
			f.metrics.ObserveFetch(host, "success", time.Since(attemptStart))
			return result, nil
		}

		kind, blockKind := classifyErr(err)
		f.breaker.RecordFailure(ctx, host, blockKind)
		f.metrics.ObserveFetch(host, "error", time.Since(attemptStart))
		lastErr = &domain.FetchError{URL: rawURL, Domain: host, Kind: kind, Attempt: attempt, Cause: err}
		f.log.Warn("fetch attempt failed", "url", rawURL, "attempt", attempt, "kind", kind, "block_kind", blockKind, "error", err)

		if attempt == maxAttempts-1 {
			break
		}

		delay := util.CalculateExponentialBackoff(attempt, backoffBase, backoffMultiplier, backoffMaxDelay) + util.JitterMillis(backoffJitterMax)
		select {
		case <-ctx.Done():
			return ports.FetchResult{}, ctx.Err()
		case <-time.After(delay):
		}
	}

	return ports.FetchResult{}, lastErr
}

func (f *Fetcher) doRequest(ctx context.Context, rawURL string) (ports.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ports.FetchResult{}, err
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := f.client
	if f.proxyDialer != nil {
		if proxyURL, ok := f.proxyDialer.CurrentProxyURL(); ok {
			client = f.clientWithProxy(proxyURL)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return ports.FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ports.FetchResult{}, &httpStatusError{statusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		return ports.FetchResult{}, &httpStatusError{statusCode: resp.StatusCode}
	}
	if resp.StatusCode >= 400 {
		return ports.FetchResult{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return ports.FetchResult{}, err
	}

	utf8Body, err := toUTF8(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		return ports.FetchResult{}, err
	}

	if blockKind, blocked := detectSoftBlock(utf8Body); blocked {
		return ports.FetchResult{}, &softBlockError{kind: blockKind}
	}

	return ports.FetchResult{
		Body:       utf8Body,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}, nil
}

// httpStatusError wraps a retriable HTTP status (429, 5xx) so classifyErr can
// tell it apart from a plain transport failure (spec.md §4.1, §7).
type httpStatusError struct {
	statusCode int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.statusCode)
}

// softBlockError marks a 2xx response whose body matched a known soft-block
// pattern (captcha, consent wall, Cloudflare challenge) rather than a real
// HTTP failure (spec.md glossary "Soft block", §4.1, §7).
type softBlockError struct {
	kind domain.BlockKind
}

func (e *softBlockError) Error() string {
	return fmt.Sprintf("soft block detected (kind=%s)", e.kind)
}

// softBlockPatterns are lower-cased substrings recognized in a 2xx response
// body as evidence of a soft block, each tagged with the block kind it
// indicates. Checked in order; the first match wins.
var softBlockPatterns = []struct {
	substr string
	kind   domain.BlockKind
}{
	{"checking your browser before accessing", domain.BlockKindCloudflare},
	{"just a moment...", domain.BlockKindCloudflare},
	{"cf-browser-verification", domain.BlockKindCloudflare},
	{"attention required! | cloudflare", domain.BlockKindCloudflare},
	{"ddos-guard", domain.BlockKindCloudflare},
	{"recaptcha", domain.BlockKindCaptcha},
	{"hcaptcha", domain.BlockKindCaptcha},
	{"g-recaptcha", domain.BlockKindCaptcha},
	{"please verify you are a human", domain.BlockKindCaptcha},
	{"captcha", domain.BlockKindCaptcha},
	{"access denied", domain.BlockKindOther},
	{"your ip has been blocked", domain.BlockKindOther},
}

func detectSoftBlock(body []byte) (domain.BlockKind, bool) {
	lower := strings.ToLower(string(body))
	for _, p := range softBlockPatterns {
		if strings.Contains(lower, p.substr) {
			return p.kind, true
		}
	}
	return "", false
}

func (f *Fetcher) clientWithProxy(proxyURL string) *http.Client {
	transport, ok := f.client.Transport.(*http.Transport)
	if !ok {
		return f.client
	}
	cloned := transport.Clone()
	if parsed, err := parseProxyURL(proxyURL); err == nil {
		cloned.Proxy = http.ProxyURL(parsed)
	}
	return &http.Client{Timeout: f.client.Timeout, Transport: cloned}
}

// toUTF8 decodes raw bytes to UTF-8 using the declared charset in
// contentType or, failing that, returns the body unmodified. This is
// hand-rolled rather than delegated to a charset-detection library
// (spec.md §9): Bulgarian real-estate sites reliably declare either UTF-8
// or windows-1251, so a lookup-table decode of that one legacy encoding
// covers the observed corpus without pulling in a general-purpose guesser.
func toUTF8(raw []byte, contentType string) ([]byte, error) {
	if len(raw) == 0 {
		return raw, nil
	}

	if bytes.HasPrefix(raw, []byte{0xEF, 0xBB, 0xBF}) {
		return raw[3:], nil
	}

	declared := declaredCharset(contentType)
	if declared == "" || strings.EqualFold(declared, "utf-8") {
		return raw, nil
	}
	if isWindows1251(declared) {
		return decodeWindows1251(raw), nil
	}
	return raw, nil
}

func isWindows1251(charset string) bool {
	switch strings.ToLower(strings.TrimSpace(charset)) {
	case "windows-1251", "cp1251", "win-1251", "x-cp1251":
		return true
	default:
		return false
	}
}

// windows1251Table maps byte values 0x80-0xFF to their Unicode code points.
// 0x00-0x7F are ASCII-identical in windows-1251.
var windows1251Table = [128]rune{
	0x0402, 0x0403, 0x201A, 0x0453, 0x201E, 0x2026, 0x2020, 0x2021,
	0x20AC, 0x2030, 0x0409, 0x2039, 0x040A, 0x040C, 0x040B, 0x040F,
	0x0452, 0x2018, 0x2019, 0x201C, 0x201D, 0x2022, 0x2013, 0x2014,
	0x0000, 0x2122, 0x0459, 0x203A, 0x045A, 0x045C, 0x045B, 0x045F,
	0x00A0, 0x040E, 0x045E, 0x0408, 0x00A4, 0x0490, 0x00A6, 0x00A7,
	0x0401, 0x00A9, 0x0404, 0x00AB, 0x00AC, 0x00AD, 0x00AE, 0x0407,
	0x00B0, 0x00B1, 0x0406, 0x0456, 0x0491, 0x00B5, 0x00B6, 0x00B7,
	0x0451, 0x2116, 0x0454, 0x00BB, 0x0458, 0x0405, 0x0455, 0x0457,
	0x0410, 0x0411, 0x0412, 0x0413, 0x0414, 0x0415, 0x0416, 0x0417,
	0x0418, 0x0419, 0x041A, 0x041B, 0x041C, 0x041D, 0x041E, 0x041F,
	0x0420, 0x0421, 0x0422, 0x0423, 0x0424, 0x0425, 0x0426, 0x0427,
	0x0428, 0x0429, 0x042A, 0x042B, 0x042C, 0x042D, 0x042E, 0x042F,
	0x0430, 0x0431, 0x0432, 0x0433, 0x0434, 0x0435, 0x0436, 0x0437,
	0x0438, 0x0439, 0x043A, 0x043B, 0x043C, 0x043D, 0x043E, 0x043F,
	0x0440, 0x0441, 0x0442, 0x0443, 0x0444, 0x0445, 0x0446, 0x0447,
	0x0448, 0x0449, 0x044A, 0x044B, 0x044C, 0x044D, 0x044E, 0x044F,
}

func decodeWindows1251(raw []byte) []byte {
	var out []rune
	for _, b := range raw {
		if b < 0x80 {
			out = append(out, rune(b))
			continue
		}
		out = append(out, windows1251Table[b-0x80])
	}
	return []byte(string(out))
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

func parseProxyURL(raw string) (*url.URL, error) {
	return url.Parse(raw)
}

// classifyErr maps a doRequest failure to the error kind reported on
// domain.FetchError and the block kind recorded against the circuit breaker
// (spec.md §7's error table, §4.3's last_block_kind).
func classifyErr(err error) (domain.ErrorKind, domain.BlockKind) {
	if err == nil {
		return domain.ErrKindNetwork, domain.BlockKindNetwork
	}

	var blockErr *softBlockError
	if errors.As(err, &blockErr) {
		return domain.ErrKindBlocked, blockErr.kind
	}

	var statusErr *httpStatusError
	if errors.As(err, &statusErr) {
		if statusErr.statusCode == http.StatusTooManyRequests {
			return domain.ErrKindRateLimited, domain.BlockKindRateLimit
		}
		return domain.ErrKindNetwork, domain.BlockKindNetwork
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "context deadline exceeded"), strings.Contains(msg, "timeout"):
		return domain.ErrKindTimeout, domain.BlockKindNetwork
	default:
		return domain.ErrKindNetwork, domain.BlockKindNetwork
	}
}
