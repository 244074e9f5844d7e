// Package util provides common utilities shared across the scrape core.
package util

import "net/url"

// DomainFromURL extracts the host (without port) from a URL string, used as
// the key for the CircuitBreaker and RateLimiter (per spec.md §4.1 step 1).
func DomainFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

