package dispatcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/vasilev-labs/scrapecore/internal/adapter/broker/memory"
	memstore "github.com/vasilev-labs/scrapecore/internal/adapter/store/memory"
	"github.com/vasilev-labs/scrapecore/internal/config"
	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

// fakeFetcher returns a fixed body for every seed URL, recording every URL
// it was asked to fetch.
type fakeFetcher struct {
	body    []byte
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (ports.FetchResult, error) {
	f.fetched = append(f.fetched, url)
	return ports.FetchResult{Body: f.body, FinalURL: url, StatusCode: 200}, nil
}

// fakeRegistry always returns the same set of listing URLs for any search
// page and never serves ExtractListing (the dispatcher never calls it).
type fakeRegistry struct {
	urls []string
}

func (r *fakeRegistry) CanParse(string) bool { return true }

func (r *fakeRegistry) ExtractSearchResults(_ string, _ []byte, _ string) ([]string, error) {
	return r.urls, nil
}

func (r *fakeRegistry) ExtractListing(_ string, _ []byte, _ string) (*domain.ExtractedListing, error) {
	return nil, fmt.Errorf("not expected to be called by the dispatcher")
}

var _ ports.Fetcher = (*fakeFetcher)(nil)
var _ ports.ParserRegistry = (*fakeRegistry)(nil)

func testSites() []config.SiteConfig {
	return []config.SiteConfig{
		{Name: "imot.bg", SeedURLs: []string{"https://imot.bg/search?city=sofia"}, Parser: "imot.bg", MaxPerDomain: 3},
	}
}

func TestDispatch_S1FullHappyPath(t *testing.T) {
	store := memstore.New()
	broker := memory.New(64)
	fetcher := &fakeFetcher{body: []byte("<html></html>")}

	urls := make([]string, 50)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://imot.bg/listing/%d", i)
	}
	registry := &fakeRegistry{urls: urls}

	d := New(store, broker, fetcher, registry, testSites(), nil)

	ctx := context.Background()
	job, err := d.Dispatch(ctx, "imot.bg", []string{"https://imot.bg/search?city=sofia"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.TotalURLs != 50 {
		t.Fatalf("expected total_urls=50, got %d", job.TotalURLs)
	}
	// chunk size = max(3*10, 20) = 30, so ceil(50/30) = 2
	wantChunks := 2
	if job.TotalChunks != wantChunks {
		t.Fatalf("expected total_chunks=%d, got %d", wantChunks, job.TotalChunks)
	}
	if job.Status != domain.JobDispatched {
		t.Fatalf("expected job dispatched, got %s", job.Status)
	}
	if len(fetcher.fetched) != 1 {
		t.Fatalf("expected exactly one seed fetch, got %d", len(fetcher.fetched))
	}

	got, err := d.Status(ctx, job.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != job.ID {
		t.Fatalf("expected job %s, got %s", job.ID, got.ID)
	}
}

func TestDispatch_EmptyUnionCompletesImmediately(t *testing.T) {
	store := memstore.New()
	broker := memory.New(8)
	fetcher := &fakeFetcher{body: []byte("<html></html>")}
	registry := &fakeRegistry{urls: nil}

	d := New(store, broker, fetcher, registry, testSites(), nil)

	job, err := d.Dispatch(context.Background(), "imot.bg", []string{"https://imot.bg/search?city=sofia"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != domain.JobComplete {
		t.Fatalf("expected job complete, got %s", job.Status)
	}
	if job.TotalURLs != 0 || job.TotalChunks != 0 {
		t.Fatalf("expected zero urls/chunks, got %d/%d", job.TotalURLs, job.TotalChunks)
	}
}

func TestDispatch_UnknownSiteIsFatal(t *testing.T) {
	store := memstore.New()
	broker := memory.New(8)
	fetcher := &fakeFetcher{body: []byte("<html></html>")}
	registry := &fakeRegistry{}

	d := New(store, broker, fetcher, registry, testSites(), nil)

	if _, err := d.Dispatch(context.Background(), "unknown.site", []string{"https://unknown.site/search"}); err == nil {
		t.Fatal("expected error for unconfigured site")
	}
}

func TestStatus_UnknownJob(t *testing.T) {
	store := memstore.New()
	broker := memory.New(8)
	d := New(store, broker, &fakeFetcher{}, &fakeRegistry{}, testSites(), nil)

	if _, err := d.Status(context.Background(), "missing"); err != domain.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
