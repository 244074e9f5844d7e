package domain

import "time"

// Anonymity classifies a live proxy per spec.md §4.6.
type Anonymity string

const (
	AnonymityTransparent Anonymity = "Transparent"
	AnonymityAnonymous   Anonymity = "Anonymous"
	AnonymityElite       Anonymity = "Elite"
	AnonymityUnknown     Anonymity = "Unknown"
)

// IsPublishable reports whether a proxy of this anonymity class may ever be
// written to the rotator file (spec.md §3 invariant, §8 property 6). The
// legacy "1" marker from the original Python classifier is treated the same
// as AnonymityTransparent, matching the Aggregator's drop rule in §4.8.
func (a Anonymity) IsPublishable() bool {
	return a != AnonymityTransparent && a != "1"
}

// ProxyStatus is a coarse liveness label used for structured logging only;
// the authoritative state lives in ProxyScore.
type ProxyStatus string

const (
	ProxyAlive   ProxyStatus = "alive"
	ProxyDead    ProxyStatus = "dead"
	ProxyUnknown ProxyStatus = "unknown"
)

// LiveProxy is a proxy that has passed liveness and classification
// (spec.md §3). Identity is (Protocol, Host, Port).
type LiveProxy struct {
	LastCheckedAt   time.Time `json:"last_checked_at"`
	Protocol        Protocol  `json:"protocol"`
	Host            string    `json:"host"`
	ExitIP          string    `json:"exit_ip"`
	Anonymity       Anonymity `json:"anonymity"`
	Port            int       `json:"port"`
	ResponseTimeMs  int64     `json:"response_time_ms"`
}

// Key is the unique identity tuple shared with RawProxy and ProxyScore.
func (p LiveProxy) Key() string {
	return RawProxy{Host: p.Host, Protocol: p.Protocol, Port: p.Port}.URL()
}

// Eligible reports whether the proxy may appear in the rotator file: not
// Transparent, and its exit IP is not inside the operator's real-IP /24
// (spec.md §3 invariant, §8 properties 6 and 7).
func (p LiveProxy) Eligible(realIP string, sameSlash24 func(a, b string) bool) bool {
	if !p.Anonymity.IsPublishable() {
		return false
	}
	if p.ExitIP != "" && realIP != "" && sameSlash24(p.ExitIP, realIP) {
		return false
	}
	return true
}
