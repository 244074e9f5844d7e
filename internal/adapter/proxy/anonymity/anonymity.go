// Package anonymity implements ports.AnonymityClassifier: it inspects a
// judge probe's body and headers and classifies a proxy's anonymity level
// (spec.md §4.6).
package anonymity

import (
	"context"
	"strings"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

// privacyHeaders is the fixed, case-insensitive header set spec.md §4.6 lists
// as evidence that a judge saw proxy involvement without the real IP
// leaking. Any one of them present classifies the proxy Anonymous.
var privacyHeaders = []string{
	"via",
	"x-forwarded-for",
	"forwarded-for",
	"x-real-ip",
	"client-ip",
	"x-client-ip",
	"proxy-connection",
	"x-proxy-id",
	"x-bluecoat-via",
	"x-originating-ip",
	"forwarded",
	"x-forwarded",
}

// HeaderClassifier implements ports.AnonymityClassifier.
type HeaderClassifier struct{}

// New builds a HeaderClassifier.
func New() HeaderClassifier { return HeaderClassifier{} }

var _ ports.AnonymityClassifier = HeaderClassifier{}

// Classify applies spec.md §4.6's algorithm against one judge's probe
// result:
//  1. If the body contains realIP anywhere -> Transparent.
//  2. Else if any header in privacyHeaders is present (case-insensitive) ->
//     Anonymous.
//  3. Else -> Elite.
//
// If the judge itself couldn't be reached (probe.Alive == false), Classify
// falls back to comparing previousExitIP to the proxy's host: different ->
// Anonymous, same -> Transparent. With no real IP to check the body against,
// or no prior observation to fall back on, it returns the conservative
// default Anonymous rather than Elite or Unknown.
func (HeaderClassifier) Classify(_ context.Context, proxy domain.RawProxy, probe ports.ProbeResult, realIP, previousExitIP string) domain.Anonymity {
	if !probe.Alive {
		if previousExitIP == "" {
			return domain.AnonymityAnonymous
		}
		if previousExitIP != proxy.Host {
			return domain.AnonymityAnonymous
		}
		return domain.AnonymityTransparent
	}

	if realIP == "" {
		return domain.AnonymityAnonymous
	}
	if bodyContainsIP(probe.Body, realIP) {
		return domain.AnonymityTransparent
	}

	lower := make(map[string]struct{}, len(probe.Headers))
	for k := range probe.Headers {
		lower[strings.ToLower(k)] = struct{}{}
	}
	for _, h := range privacyHeaders {
		if _, ok := lower[h]; ok {
			return domain.AnonymityAnonymous
		}
	}

	return domain.AnonymityElite
}

func bodyContainsIP(body []byte, ip string) bool {
	if ip == "" || len(body) == 0 {
		return false
	}
	return strings.Contains(string(body), ip)
}
