package parser

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
)

// BazarBG parses pages from bazar.bg.
type BazarBG struct{}

// CanParse reports whether host belongs to bazar.bg.
func (BazarBG) CanParse(host string) bool {
	return strings.Contains(host, "bazar.bg")
}

var bazarTitleSelectors = []fieldSelector{
	{tag: "h1", class: "ad-title"},
	{tag: "h1"},
}

var bazarPriceSelectors = []fieldSelector{
	{tag: "div", class: "ad-price"},
	{tag: "span", class: "price"},
}

var bazarAreaSelectors = []fieldSelector{
	{tag: "div", class: "ad-area"},
	{tag: "span", class: "sq-m"},
}

var bazarLocationSelectors = []fieldSelector{
	{tag: "div", class: "ad-location"},
	{tag: "span", class: "location"},
}

// ExtractSearchResults recovers the individual listing links from one
// fetched bazar.bg search-results page, same contract as
// ImotBG.ExtractSearchResults.
func (BazarBG) ExtractSearchResults(body []byte, seedURL string) ([]string, error) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, &domain.ExtractionError{URL: seedURL, Parser: "bazar.bg", Cause: err}
	}

	var urls []string
	for _, link := range findAllNodes(root, fieldSelector{tag: "a", class: "ad-link"}) {
		if href := attrValue(link, "href"); href != "" {
			urls = append(urls, href)
		}
	}
	return urls, nil
}

// ExtractListing parses one fetched bazar.bg listing page, same contract
// as ImotBG.ExtractListing.
func (BazarBG) ExtractListing(body []byte, url string) (*domain.ExtractedListing, error) {
	root, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, &domain.ExtractionError{URL: url, Parser: "bazar.bg", Cause: err}
	}

	title := selectorChain(root, bazarTitleSelectors)
	if title == "" {
		return nil, nil
	}

	return &domain.ExtractedListing{
		ScrapedAt:  now(),
		SourceSite: "bazar.bg",
		ExternalID: externalIDFromURL(url),
		URL:        url,
		Title:      title,
		PriceBGN:   parsePriceBGN(selectorChain(root, bazarPriceSelectors)),
		AreaSqM:    parseAreaSqM(selectorChain(root, bazarAreaSelectors)),
		Location:   selectorChain(root, bazarLocationSelectors),
	}, nil
}
