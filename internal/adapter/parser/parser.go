// Package parser provides a registry of site-specific Parser
// implementations plus reference parsers for imot.bg and bazar.bg
// (spec.md §4.10, §6). Each reference parser walks the DOM with
// golang.org/x/net/html and recovers
// original_source/websites/generic/selector_chain.py's idea: try an
// ordered list of selectors per field and take the first non-empty match
// instead of hard failing on a markup change.
package parser

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

// Registry dispatches ExtractSearchResults and ExtractListing calls to the
// first registered Parser whose
// CanParse reports true for the page's host, mirroring the
// registry/routing pattern the teacher uses for its platform profiles.
type Registry struct {
	parsers []ports.Parser
}

// New builds an empty Registry; use Register to add site parsers.
func New() *Registry {
	return &Registry{}
}

var _ ports.ParserRegistry = (*Registry)(nil)

// Register adds p to the registry.
func (r *Registry) Register(p ports.Parser) {
	r.parsers = append(r.parsers, p)
}

// CanParse reports whether any registered parser claims host.
func (r *Registry) CanParse(host string) bool {
	for _, p := range r.parsers {
		if p.CanParse(host) {
			return true
		}
	}
	return false
}

// ExtractSearchResults dispatches to the first parser that claims host,
// recovering the listing URLs linked from a seed/search page (spec.md
// §4.10 step 3).
func (r *Registry) ExtractSearchResults(host string, body []byte, seedURL string) ([]string, error) {
	for _, p := range r.parsers {
		if p.CanParse(host) {
			return p.ExtractSearchResults(body, seedURL)
		}
	}
	return nil, &domain.ExtractionError{URL: seedURL, Parser: "registry", Cause: errNoParser(host)}
}

// ExtractListing dispatches to the first parser that claims host, parsing
// one already-discovered listing page (spec.md §4.11 step 3).
func (r *Registry) ExtractListing(host string, body []byte, url string) (*domain.ExtractedListing, error) {
	for _, p := range r.parsers {
		if p.CanParse(host) {
			return p.ExtractListing(body, url)
		}
	}
	return nil, &domain.ExtractionError{URL: url, Parser: "registry", Cause: errNoParser(host)}
}

type errNoParser string

func (e errNoParser) Error() string { return "no parser registered for " + string(e) }

// selectorChain tries each selector in order against root and returns the
// first non-empty text match.
func selectorChain(root *html.Node, selectors []fieldSelector) string {
	for _, sel := range selectors {
		if node := findNode(root, sel); node != nil {
			text := strings.TrimSpace(textContent(node))
			if text != "" {
				return text
			}
		}
	}
	return ""
}

// fieldSelector matches an element by tag name and an optional class
// substring, a minimal stand-in for CSS selectors since the pipeline only
// ever needs "tag with this class" matching.
type fieldSelector struct {
	tag   string
	class string
}

func findNode(n *html.Node, sel fieldSelector) *html.Node {
	if n.Type == html.ElementNode && n.Data == sel.tag && (sel.class == "" || hasClass(n, sel.class)) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findNode(c, sel); found != nil {
			return found
		}
	}
	return nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && strings.Contains(attr.Val, class) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func findAllNodes(n *html.Node, sel fieldSelector) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == sel.tag && (sel.class == "" || hasClass(node, sel.class)) {
			out = append(out, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// parsePriceBGN collects every digit of a price string like "125 000 лв."
// or "€63,900", in order, and parses them as one number (125000, 63900);
// spaces, separators and currency marks are dropped.
func parsePriceBGN(raw string) float64 {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0
	}
	value, err := strconv.ParseFloat(digits.String(), 64)
	if err != nil {
		return 0
	}
	return value
}

func parseAreaSqM(raw string) float64 {
	return parsePriceBGN(raw) // same "all digits as one number" heuristic
}

func now() time.Time { return time.Now() }
