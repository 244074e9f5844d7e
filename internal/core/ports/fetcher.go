package ports

import "context"

// FetchResult is the response body of a fetch, decoded to UTF-8 when it was
// declared as windows-1251 and otherwise left as received (spec.md §4.5, §9).
type FetchResult struct {
	Body       []byte
	FinalURL   string
	StatusCode int
}

// Fetcher retrieves a URL through the currently selected proxy, applying
// rate limiting, circuit breaking, and retry/backoff before returning
// (spec.md §4.1, §4.5).
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResult, error)
}
