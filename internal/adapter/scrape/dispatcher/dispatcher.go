// Package dispatcher implements ports.ScrapeDispatcher: it fetches a site's
// seed URLs, extracts the listing URLs they link to, chunks the deduped
// union, and emits the chord's task group to the TaskBroker (spec.md §4.10).
package dispatcher

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/vasilev-labs/scrapecore/internal/adapter/metrics"
	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
	"github.com/vasilev-labs/scrapecore/internal/util"
)

// minChunkSize is the floor applied to the per-site chunk size regardless of
// how small max_per_domain is configured (spec.md §4.10 step 5).
const minChunkSize = 20

// Dispatcher implements ports.ScrapeDispatcher.
type Dispatcher struct {
	store   ports.CoordinationStore
	broker  ports.TaskBroker
	fetcher ports.Fetcher
	parsers ports.ParserRegistry
	sites   map[string]config.SiteConfig
	metrics *metrics.Collector
}

// New builds a Dispatcher. sites maps a site's name to its SiteConfig so
// Dispatch can look up its chunk-size floor without the caller threading it
// through. collector may be nil, in which case dispatch counts aren't
// reported.
func New(store ports.CoordinationStore, broker ports.TaskBroker, fetcher ports.Fetcher, parsers ports.ParserRegistry, sites []config.SiteConfig, collector *metrics.Collector) *Dispatcher {
	bySite := make(map[string]config.SiteConfig, len(sites))
	for _, s := range sites {
		bySite[s.Name] = s
	}
	return &Dispatcher{store: store, broker: broker, fetcher: fetcher, parsers: parsers, sites: bySite, metrics: collector}
}

var _ ports.ScrapeDispatcher = (*Dispatcher)(nil)

// Dispatch resolves site's seed URLs into a deduped set of listing URLs,
// partitions them into chunks, and hands the resulting group of chunk tasks
// to the TaskBroker (spec.md §4.10).
func (d *Dispatcher) Dispatch(ctx context.Context, site string, seedURLs []string) (domain.ScrapeJob, error) {
	siteCfg, ok := d.sites[site]
	if !ok {
		return domain.ScrapeJob{}, &domain.FatalError{Op: "dispatch", Cause: fmt.Errorf("no site configured for %q", site)}
	}

	job := domain.ScrapeJob{
		ID:        "scrape_" + site + "_" + randomHex(8),
		CreatedAt: time.Now(),
		Status:    domain.JobCollecting,
		Site:      site,
		SeedURLs:  seedURLs,
	}
	if err := d.store.PutJob(ctx, job); err != nil {
		return domain.ScrapeJob{}, err
	}

	urls := d.collectListingURLs(ctx, job.Site, seedURLs)

	job.TotalURLs = len(urls)
	if len(urls) == 0 {
		job.Status = domain.JobComplete
		job.CompletedAt = time.Now()
		if err := d.store.PutJob(ctx, job); err != nil {
			return domain.ScrapeJob{}, err
		}
		if d.metrics != nil {
			d.metrics.JobCompleted(job.Status)
		}
		return job, nil
	}

	chunkSize := maxInt(siteCfg.MaxPerDomain*10, minChunkSize)
	chunks := chunkURLs(urls, chunkSize)

	if !job.CanAdvanceTo(domain.JobDispatched) {
		return domain.ScrapeJob{}, &domain.FatalError{Op: "dispatch", Cause: fmt.Errorf("job %s cannot advance to dispatched from %s", job.ID, job.Status)}
	}
	job.Status = domain.JobDispatched
	job.TotalChunks = len(chunks)
	if err := d.store.PutJob(ctx, job); err != nil {
		return domain.ScrapeJob{}, err
	}

	if err := d.broker.Dispatch(ctx, job, chunks); err != nil {
		job.Status = domain.JobFailed
		_ = d.store.PutJob(ctx, job)
		return domain.ScrapeJob{}, err
	}

	if d.metrics != nil {
		d.metrics.JobDispatched()
	}
	return job, nil
}

// collectListingURLs fetches every seed URL and extracts the listing URLs
// each search page links to, deduping across all seeds (spec.md §4.10
// step 3). A seed that fails to fetch or parse contributes nothing to the
// union rather than aborting the whole job.
func (d *Dispatcher) collectListingURLs(ctx context.Context, _ string, seedURLs []string) []string {
	seen := make(map[string]struct{})
	var ordered []string

	for _, seed := range seedURLs {
		result, err := d.fetcher.Fetch(ctx, seed)
		if err != nil {
			continue
		}
		host := util.DomainFromURL(seed)
		urls, err := d.parsers.ExtractSearchResults(host, result.Body, seed)
		if err != nil {
			continue
		}
		for _, u := range urls {
			if _, ok := seen[u]; ok {
				continue
			}
			seen[u] = struct{}{}
			ordered = append(ordered, u)
		}
	}
	return ordered
}

// chunkURLs partitions urls into contiguous slices of at most size.
func chunkURLs(urls []string, size int) [][]string {
	if size <= 0 {
		size = minChunkSize
	}
	var chunks [][]string
	for i := 0; i < len(urls); i += size {
		end := i + size
		if end > len(urls) {
			end = len(urls)
		}
		chunks = append(chunks, urls[i:end])
	}
	return chunks
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func randomHex(n int) string {
	buf := make([]byte, n/2+1)
	if _, err := rand.Read(buf); err != nil {
		return "00000000"[:n]
	}
	return hex.EncodeToString(buf)[:n]
}

// Status returns the current state of jobID.
func (d *Dispatcher) Status(ctx context.Context, jobID string) (domain.ScrapeJob, error) {
	return d.store.GetJob(ctx, jobID)
}
