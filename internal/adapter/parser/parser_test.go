package parser

import "testing"

const imotListingPage = `
<html><body>
<h1 class="announcementTitle">2-bedroom apartment, Lozenets</h1>
<span class="price">125 000 лв.</span>
<span class="area">85 кв.м</span>
<span class="location">Sofia, Lozenets</span>
</body></html>`

const imotSearchPage = `
<html><body>
<a class="photoLink" href="https://imot.bg/listing/1">photo</a>
<a class="photoLink" href="https://imot.bg/listing/2">photo</a>
</body></html>`

func TestImotBG_ExtractsListingPage(t *testing.T) {
	listing, err := ImotBG{}.ExtractListing([]byte(imotListingPage), "https://imot.bg/listing/42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listing == nil {
		t.Fatal("expected a listing, got nil")
	}
	if listing.ExternalID != "42" {
		t.Errorf("expected external id 42, got %s", listing.ExternalID)
	}
	if listing.PriceBGN != 125000 {
		t.Errorf("expected price 125000, got %v", listing.PriceBGN)
	}
	if listing.AreaSqM != 85 {
		t.Errorf("expected area 85, got %v", listing.AreaSqM)
	}
}

func TestImotBG_ExtractListingReturnsNilWithoutTitle(t *testing.T) {
	listing, err := ImotBG{}.ExtractListing([]byte(imotSearchPage), "https://imot.bg/search?page=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listing != nil {
		t.Fatalf("expected no listing on a page without a title, got %+v", listing)
	}
}

func TestImotBG_ExtractSearchResults(t *testing.T) {
	urls, err := ImotBG{}.ExtractSearchResults([]byte(imotSearchPage), "https://imot.bg/search?page=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(urls) != 2 {
		t.Fatalf("expected 2 URLs, got %d", len(urls))
	}
}

func TestRegistry_DispatchesByHost(t *testing.T) {
	reg := New()
	reg.Register(ImotBG{})
	reg.Register(BazarBG{})

	if !reg.CanParse("imot.bg") {
		t.Fatal("expected registry to claim imot.bg")
	}
	if !reg.CanParse("bazar.bg") {
		t.Fatal("expected registry to claim bazar.bg")
	}
	if reg.CanParse("example.com") {
		t.Fatal("expected registry to reject unknown host")
	}

	if _, err := reg.ExtractListing("example.com", nil, "https://example.com"); err == nil {
		t.Fatal("expected error for unregistered host")
	}
	if _, err := reg.ExtractSearchResults("example.com", nil, "https://example.com"); err == nil {
		t.Fatal("expected error for unregistered host")
	}
}

func TestRegistry_ExtractListingRoutesToRegisteredParser(t *testing.T) {
	reg := New()
	reg.Register(ImotBG{})
	reg.Register(BazarBG{})

	listing, err := reg.ExtractListing("imot.bg", []byte(imotListingPage), "https://imot.bg/listing/42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if listing == nil || listing.SourceSite != "imot.bg" {
		t.Fatalf("expected listing routed to imot.bg parser, got %+v", listing)
	}
}
