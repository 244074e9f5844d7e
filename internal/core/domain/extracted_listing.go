package domain

import "time"

// ExtractedListing is the normalised output of a Parser (spec.md §4.10,
// §6 Parser interface). SourceSite + ExternalID is the dedupe key the
// ListingStore enforces.
type ExtractedListing struct {
	ScrapedAt    time.Time         `json:"scraped_at"`
	SourceSite   string            `json:"source_site"`
	ExternalID   string            `json:"external_id"`
	URL          string            `json:"url"`
	Title        string            `json:"title"`
	PriceBGN     float64           `json:"price_bgn"`
	AreaSqM      float64           `json:"area_sq_m"`
	Location     string            `json:"location"`
	Attributes   map[string]string `json:"attributes,omitempty"`
}

// Key is the dedupe identity enforced by the ListingStore.
func (l ExtractedListing) Key() string {
	return l.SourceSite + ":" + l.ExternalID
}
