// Package quality implements ports.QualityProber: the exit-IP /24 sanity
// check and anonymity gate that decide whether a live proxy may be
// published to the rotator (spec.md §4.7, §8 property 7).
package quality

import (
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/util"
)

// Prober implements ports.QualityProber.
type Prober struct {
	realIP string
}

// New builds a Prober that rejects any proxy whose exit IP shares a /24
// with realIP (the operator's own address), preventing the pipeline from
// unknowingly routing "proxied" traffic straight back out its own IP.
func New(realIP string) *Prober {
	return &Prober{realIP: realIP}
}

// IsEligible reports whether proxy may be published.
func (p *Prober) IsEligible(proxy domain.LiveProxy) bool {
	return proxy.Eligible(p.realIP, util.SameIPv4Slash24)
}
