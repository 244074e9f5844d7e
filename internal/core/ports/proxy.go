package ports

import (
	"context"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// RawProxySource discovers candidate proxies from an external source
// (spec.md §3, §4.6) - an HTTP list, a subprocess scraper, whatever the
// configured adapter wraps.
type RawProxySource interface {
	Discover(ctx context.Context) ([]domain.RawProxy, error)
}

// ProbeResult is everything a LivenessProber observed from one judge call,
// enough for an AnonymityClassifier to apply spec.md §4.6's full algorithm
// (body inspection, header inspection) without re-fetching anything.
type ProbeResult struct {
	Body           []byte
	Headers        map[string]string
	ExitIP         string
	ResponseTimeMs int64
	Alive          bool
}

// LivenessProber checks whether a raw proxy can reach an IP-echo judge and
// reports its response time, exit IP, and raw response for classification
// (spec.md §4.6).
type LivenessProber interface {
	Probe(ctx context.Context, proxy domain.RawProxy) (ProbeResult, error)
}

// AnonymityClassifier inspects a judge probe's body and headers against the
// real IP and classifies the proxy's anonymity level (spec.md §4.6):
// Transparent if the real IP leaks into the body, Anonymous if any of the
// fixed proxy-indicator headers are present, Elite otherwise. previousExitIP
// is a prior observation used as a fallback when the judge itself couldn't
// be reached (spec.md §4.6 judge-failure fallback).
type AnonymityClassifier interface {
	Classify(ctx context.Context, proxy domain.RawProxy, probe ProbeResult, realIP, previousExitIP string) domain.Anonymity
}

// QualityProber runs the exit-IP /24 sanity check and any secondary probes
// before a live proxy is published (spec.md §4.7, §8 property 7).
type QualityProber interface {
	IsEligible(proxy domain.LiveProxy) bool
}

// ProxyLifecycleEngine orchestrates discovery -> liveness -> classification
// -> quality -> publish end to end (spec.md §4.6, §4.7).
type ProxyLifecycleEngine interface {
	// Refresh runs one full discovery+validation cycle and publishes the
	// resulting live proxy set.
	Refresh(ctx context.Context) ([]domain.LiveProxy, error)
}

// ProxyPublisher atomically writes the published live-proxy files consumed
// by the rotator (spec.md §4.7, §8 property 6: temp+rename, never a
// partially written file).
type ProxyPublisher interface {
	Publish(ctx context.Context, proxies []domain.LiveProxy) error
}

// RotationStrategy selects the next proxy to hand to an inbound connection
// (spec.md §4.7): random, round-robin, or priority (by ProxyScore).
type RotationStrategy interface {
	Next(candidates []domain.LiveProxy, scores map[string]domain.ProxyScore) (domain.LiveProxy, bool)
}

// RotatingProxyEndpoint is the local listener that forwards connections
// through a selected live proxy; Reload swaps in a new candidate set
// without dropping in-flight connections (spec.md §4.7).
type RotatingProxyEndpoint interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Reload(proxies []domain.LiveProxy)
}
