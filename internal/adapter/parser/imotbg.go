package parser

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// ImotBG parses pages from imot.bg.
type ImotBG struct{}

// CanParse reports whether host belongs to imot.bg.
func (ImotBG) CanParse(host string) bool {
	return strings.Contains(host, "imot.bg")
}

var imotTitleSelectors = []fieldSelector{
	{tag: "h1", class: "announcementTitle"},
	{tag: "h1"},
	{tag: "div", class: "title"},
}

var imotPriceSelectors = []fieldSelector{
	{tag: "span", class: "price"},
	{tag: "div", class: "price"},
}

var imotAreaSelectors = []fieldSelector{
	{tag: "span", class: "area"},
	{tag: "div", class: "floorArea"},
}

var imotLocationSelectors = []fieldSelector{
	{tag: "span", class: "location"},
	{tag: "div", class: "address"},
}

// ExtractSearchResults recovers the individual listing links from one
// fetched imot.bg search-results page (spec.md §4.10 step 3).
func (ImotBG) ExtractSearchResults(body []byte, seedURL string) ([]string, error) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, &domain.ExtractionError{URL: seedURL, Parser: "imot.bg", Cause: err}
	}

	var urls []string
	for _, link := range findAllNodes(root, fieldSelector{tag: "a", class: "photoLink"}) {
		if href := attrValue(link, "href"); href != "" {
			urls = append(urls, href)
		}
	}
	return urls, nil
}

// ExtractListing parses one fetched imot.bg listing page into a structured
// listing, or returns a nil listing (no error) if the page has no
// recognizable listing content (spec.md §4.11 step 3).
func (ImotBG) ExtractListing(body []byte, url string) (*domain.ExtractedListing, error) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, &domain.ExtractionError{URL: url, Parser: "imot.bg", Cause: err}
	}

	title := selectorChain(root, imotTitleSelectors)
	if title == "" {
		return nil, nil
	}

	return &domain.ExtractedListing{
		ScrapedAt:  now(),
		SourceSite: "imot.bg",
		ExternalID: externalIDFromURL(url),
		URL:        url,
		Title:      title,
		PriceBGN:   parsePriceBGN(selectorChain(root, imotPriceSelectors)),
		AreaSqM:    parseAreaSqM(selectorChain(root, imotAreaSelectors)),
		Location:   selectorChain(root, imotLocationSelectors),
	}, nil
}

func externalIDFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx == -1 {
		return trimmed
	}
	return trimmed[idx+1:]
}
