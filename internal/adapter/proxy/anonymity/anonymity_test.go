package anonymity

import (
	"context"
	"testing"

	"github.com/vasilev-labs/scrapecore/internal/core/domain"
	"github.com/vasilev-labs/scrapecore/internal/core/ports"
)

func TestClassify_BodyLeaksRealIP_Transparent(t *testing.T) {
	c := New()
	proxy := domain.RawProxy{Host: "1.2.3.4", Port: 8080, Protocol: "http"}
	probe := ports.ProbeResult{Alive: true, Body: []byte(`{"ip":"203.0.113.9"}`)}

	got := c.Classify(context.Background(), proxy, probe, "203.0.113.9", "")
	if got != domain.AnonymityTransparent {
		t.Fatalf("expected Transparent, got %s", got)
	}
}

func TestClassify_PrivacyHeaderPresent_Anonymous(t *testing.T) {
	c := New()
	proxy := domain.RawProxy{Host: "1.2.3.4", Port: 8080, Protocol: "http"}
	probe := ports.ProbeResult{
		Alive:   true,
		Body:    []byte(`{"ip":"9.9.9.9"}`),
		Headers: map[string]string{"X-Forwarded-For": "203.0.113.9"},
	}

	got := c.Classify(context.Background(), proxy, probe, "203.0.113.9", "")
	if got != domain.AnonymityAnonymous {
		t.Fatalf("expected Anonymous, got %s", got)
	}
}

func TestClassify_PrivacyHeaderCaseInsensitive(t *testing.T) {
	c := New()
	proxy := domain.RawProxy{Host: "1.2.3.4", Port: 8080, Protocol: "http"}
	probe := ports.ProbeResult{
		Alive:   true,
		Body:    []byte(`{"ip":"9.9.9.9"}`),
		Headers: map[string]string{"via": "1.1 squid"},
	}

	got := c.Classify(context.Background(), proxy, probe, "203.0.113.9", "")
	if got != domain.AnonymityAnonymous {
		t.Fatalf("expected Anonymous, got %s", got)
	}
}

func TestClassify_NoIndicators_Elite(t *testing.T) {
	c := New()
	proxy := domain.RawProxy{Host: "1.2.3.4", Port: 8080, Protocol: "http"}
	probe := ports.ProbeResult{
		Alive: true,
		Body:  []byte(`{"ip":"9.9.9.9"}`),
	}

	got := c.Classify(context.Background(), proxy, probe, "203.0.113.9", "")
	if got != domain.AnonymityElite {
		t.Fatalf("expected Elite, got %s", got)
	}
}

func TestClassify_JudgeFailure_FallsBackToExitIPComparison(t *testing.T) {
	c := New()
	proxy := domain.RawProxy{Host: "1.2.3.4", Port: 8080, Protocol: "http"}
	probe := ports.ProbeResult{Alive: false}

	if got := c.Classify(context.Background(), proxy, probe, "203.0.113.9", "9.9.9.9"); got != domain.AnonymityAnonymous {
		t.Fatalf("expected Anonymous when previousExitIP differs from proxy host, got %s", got)
	}
	if got := c.Classify(context.Background(), proxy, probe, "203.0.113.9", "1.2.3.4"); got != domain.AnonymityTransparent {
		t.Fatalf("expected Transparent when previousExitIP matches proxy host, got %s", got)
	}
}

func TestClassify_JudgeFailureNoPriorObservation_ConservativeAnonymous(t *testing.T) {
	c := New()
	proxy := domain.RawProxy{Host: "1.2.3.4", Port: 8080, Protocol: "http"}
	probe := ports.ProbeResult{Alive: false}

	got := c.Classify(context.Background(), proxy, probe, "203.0.113.9", "")
	if got != domain.AnonymityAnonymous {
		t.Fatalf("expected conservative Anonymous default, got %s", got)
	}
}
