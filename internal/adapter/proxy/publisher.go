// Package proxy holds the ProxyPublisher and rotation-strategy
// implementations shared by the lifecycle engine and rotator (spec.md
// §4.7, §8 property 6).
package proxy

import (
	"context"
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// FilePublisher implements ports.ProxyPublisher, writing the published
// proxy set to path via a temp file plus rename so a reader (the rotator)
// never observes a partially written file.
type FilePublisher struct {
	path string
}

// NewFilePublisher builds a FilePublisher targeting path.
func NewFilePublisher(path string) *FilePublisher {
	return &FilePublisher{path: path}
}

// Publish writes proxies to the publisher's path atomically.
func (p *FilePublisher) Publish(_ context.Context, proxies []domain.LiveProxy) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.StoreError{Op: "proxy_publish", Cause: err}
	}

	encoded, err := json.MarshalIndent(proxies, "", "  ")
	if err != nil {
		return &domain.StoreError{Op: "proxy_publish", Cause: err}
	}

	tmp, err := os.CreateTemp(dir, "live_proxies.*.tmp")
	if err != nil {
		return &domain.StoreError{Op: "proxy_publish", Cause: err}
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &domain.StoreError{Op: "proxy_publish", Cause: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &domain.StoreError{Op: "proxy_publish", Cause: err}
	}

	if err := os.Rename(tmpPath, p.path); err != nil {
		os.Remove(tmpPath)
		return &domain.StoreError{Op: "proxy_publish", Cause: err}
	}
	return nil
}

// ReadPublished loads the currently published proxy set from path.
func ReadPublished(path string) ([]domain.LiveProxy, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StoreError{Op: "proxy_read_published", Cause: err}
	}
	var proxies []domain.LiveProxy
	if err := json.Unmarshal(raw, &proxies); err != nil {
		return nil, &domain.StoreError{Op: "proxy_read_published", Cause: err}
	}
	return proxies, nil
}

// RandomStrategy implements ports.RotationStrategy by picking a uniformly
// random candidate.
type RandomStrategy struct{}

func (RandomStrategy) Next(candidates []domain.LiveProxy, _ map[string]domain.ProxyScore) (domain.LiveProxy, bool) {
	if len(candidates) == 0 {
		return domain.LiveProxy{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

// RoundRobinStrategy implements ports.RotationStrategy by cycling through
// candidates in order.
type RoundRobinStrategy struct {
	next int
}

func (s *RoundRobinStrategy) Next(candidates []domain.LiveProxy, _ map[string]domain.ProxyScore) (domain.LiveProxy, bool) {
	if len(candidates) == 0 {
		return domain.LiveProxy{}, false
	}
	p := candidates[s.next%len(candidates)]
	s.next++
	return p, true
}

// PriorityStrategy implements ports.RotationStrategy by picking the
// candidate with the highest ProxyScore.Score, falling back to the lower
// response time when either candidate has no recorded score or both scores
// are equal.
type PriorityStrategy struct{}

func (PriorityStrategy) Next(candidates []domain.LiveProxy, scores map[string]domain.ProxyScore) (domain.LiveProxy, bool) {
	if len(candidates) == 0 {
		return domain.LiveProxy{}, false
	}

	ranked := make([]domain.LiveProxy, len(candidates))
	copy(ranked, candidates)

	sort.SliceStable(ranked, func(i, j int) bool {
		si, oki := scores[ranked[i].Key()]
		sj, okj := scores[ranked[j].Key()]
		if oki && okj {
			if si.Score != sj.Score {
				return si.Score > sj.Score
			}
		}
		return ranked[i].ResponseTimeMs < ranked[j].ResponseTimeMs
	})
	return ranked[0], true
}
