// Package validator implements ports.LivenessProber: it dials a raw proxy
// and fetches one of the configured judge URLs, reporting whether the
// proxy is alive and what exit IP it was seen from (spec.md §4.6).
package validator

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

// HTTPValidator implements ports.LivenessProber against one or more judge
// URLs, round-robining through them per call (spec.md §9 Open Question 1).
type HTTPValidator struct {
	judgeURLs []string
	timeout   time.Duration
	next      int
}

// New builds an HTTPValidator probing judgeURLs with the given per-attempt
// timeout.
func New(judgeURLs []string, timeout time.Duration) *HTTPValidator {
	return &HTTPValidator{judgeURLs: judgeURLs, timeout: timeout}
}

func (v *HTTPValidator) nextJudgeURL() string {
	if len(v.judgeURLs) == 0 {
		return ""
	}
	u := v.judgeURLs[v.next%len(v.judgeURLs)]
	v.next++
	return u
}

// judgeResponse is the shape expected from an IP-echo judge that also
// reports the headers it saw, e.g. https://httpbin.org/get returns
// {"origin": "1.2.3.4", "headers": {"Via": "...", ...}}. Both "origin" and
// "ip" are accepted since judges vary on the field name.
type judgeResponse struct {
	Origin  string            `json:"origin"`
	IP      string            `json:"ip"`
	Headers map[string]string `json:"headers"`
}

// Probe dials proxy and fetches a judge URL through it, returning the raw
// body and headers the judge observed so an AnonymityClassifier can apply
// spec.md §4.6's full algorithm, plus whether the proxy responded at all
// and the round-trip time.
func (v *HTTPValidator) Probe(ctx context.Context, proxy domain.RawProxy) (ports.ProbeResult, error) {
	judgeURL := v.nextJudgeURL()
	if judgeURL == "" {
		return ports.ProbeResult{}, &domain.FetchError{URL: proxy.URL(), Kind: domain.ErrKindProxyDead, Cause: errNoJudgeURLs}
	}

	proxyURL, err := url.Parse(proxy.URL())
	if err != nil {
		return ports.ProbeResult{}, &domain.FetchError{URL: judgeURL, Kind: domain.ErrKindProxyDead, Cause: err}
	}

	client := &http.Client{
		Timeout:   v.timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, judgeURL, nil)
	if err != nil {
		return ports.ProbeResult{}, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return ports.ProbeResult{Alive: false}, nil // dead proxy, not a pipeline error
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Milliseconds()
	if resp.StatusCode != http.StatusOK {
		return ports.ProbeResult{Alive: false, ResponseTimeMs: elapsed}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return ports.ProbeResult{Alive: false, ResponseTimeMs: elapsed}, nil
	}

	result := ports.ProbeResult{Alive: true, Body: body, ResponseTimeMs: elapsed}

	var parsed judgeResponse
	if err := json.Unmarshal(body, &parsed); err == nil {
		result.ExitIP = parsed.Origin
		if result.ExitIP == "" {
			result.ExitIP = parsed.IP
		}
		result.Headers = parsed.Headers
	}

	return result, nil
}

var errNoJudgeURLs = errJudges("no judge URLs configured")

type errJudges string

func (e errJudges) Error() string { return string(e) }
