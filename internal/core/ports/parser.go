package ports

import "github.com/vasilev-labs/scrapecore/internal/core/domain"

// Parser extracts structured data from one fetched page for a given site
// (spec.md §4.10, §4.11, §6). ExtractSearchResults is called once per seed
// URL at dispatch time to discover listing URLs; ExtractListing is called
// by workers on each discovered URL to extract one structured listing.
// CanParse lets the registry route a URL to the parser that owns its host
// without either extraction method needing to know about other sites.
type Parser interface {
	CanParse(host string) bool
	ExtractSearchResults(body []byte, seedURL string) ([]string, error)
	ExtractListing(body []byte, url string) (*domain.ExtractedListing, error)
}

// ParserRegistry routes a host to the Parser registered for it, so callers
// (the Dispatcher, the Worker) don't need to know which site parser owns
// which page (spec.md §4.10, §4.11, §6).
type ParserRegistry interface {
	ExtractSearchResults(host string, body []byte, seedURL string) ([]string, error)
	ExtractListing(host string, body []byte, url string) (*domain.ExtractedListing, error)
}
