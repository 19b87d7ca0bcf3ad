package identifier

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/farmtrace/provenance/common/models"
)

const testBase = "https://scan.farmtrace.in"

func TestMintParseRoundTrip(t *testing.T) {
	c := New(testBase)

	tests := []struct {
		name string
		kind models.IdentifierKind
		id   uint64
	}{
		{"product zero", models.KindProduct, 0},
		{"product small", models.KindProduct, 42},
		{"product max", models.KindProduct, math.MaxUint64},
		{"batch small", models.KindBatch, 7},
		{"batch large", models.KindBatch, 123456789},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			minted, err := c.Mint(tt.kind, tt.id)
			if err != nil {
				t.Fatalf("Mint(%s, %d): %v", tt.kind, tt.id, err)
			}
			if minted.Nonce == "" {
				t.Fatal("minted identifier has empty nonce")
			}
			if minted.Assurance != models.AssuranceStrong {
				t.Fatalf("assurance = %q, want %q", minted.Assurance, models.AssuranceStrong)
			}

			parsed, ok := Parse(minted.URL)
			if !ok {
				t.Fatalf("Parse(%q) rejected a minted URL", minted.URL)
			}
			if parsed.Kind != tt.kind || parsed.ID != tt.id {
				t.Errorf("round trip = {%s %d}, want {%s %d}", parsed.Kind, parsed.ID, tt.kind, tt.id)
			}
			if parsed.Nonce != minted.Nonce {
				t.Errorf("nonce round trip = %q, want %q", parsed.Nonce, minted.Nonce)
			}
		})
	}
}

func TestMintProductScenario(t *testing.T) {
	minted, err := New(testBase).Mint(models.KindProduct, 42)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(minted.URL, testBase+"/p/42/") {
		t.Fatalf("URL = %q, want prefix %q", minted.URL, testBase+"/p/42/")
	}
	parsed, ok := Parse(minted.URL)
	if !ok || parsed.Kind != models.KindProduct || parsed.ID != 42 {
		t.Fatalf("Parse = %+v ok=%v, want product 42", parsed, ok)
	}
}

func TestMintRejectsUnknownKind(t *testing.T) {
	if _, err := New(testBase).Mint(models.IdentifierKind("shipment"), 1); err == nil {
		t.Fatal("Mint accepted an unknown kind")
	}
}

func TestMintNonceUniqueness(t *testing.T) {
	c := New(testBase)
	seen := make(map[string]bool)
	for i := 0; i < 256; i++ {
		minted, err := c.Mint(models.KindBatch, 9)
		if err != nil {
			t.Fatal(err)
		}
		if seen[minted.Nonce] {
			t.Fatalf("nonce %q issued twice", minted.Nonce)
		}
		seen[minted.Nonce] = true
	}
}

func TestMintFallbackNonce(t *testing.T) {
	orig := newUUID
	newUUID = func() (uuid.UUID, error) {
		return uuid.UUID{}, errors.New("entropy unavailable")
	}
	defer func() { newUUID = orig }()

	minted, err := New(testBase).Mint(models.KindProduct, 3)
	if err != nil {
		t.Fatal(err)
	}
	if minted.Assurance != models.AssuranceFallback {
		t.Fatalf("assurance = %q, want %q", minted.Assurance, models.AssuranceFallback)
	}
	if minted.Nonce == "" {
		t.Fatal("fallback nonce is empty")
	}
	if _, ok := Parse(minted.URL); !ok {
		t.Fatalf("Parse rejected fallback URL %q", minted.URL)
	}
}

func TestParseLegacyForms(t *testing.T) {
	tests := []struct {
		name string
		text string
		kind models.IdentifierKind
		id   uint64
	}{
		{"legacy product full url", "https://scan.farmtrace.in/verify/product/15", models.KindProduct, 15},
		{"legacy batch full url", "https://scan.farmtrace.in/verify/batch/8", models.KindBatch, 8},
		{"legacy path only", "/verify/product/15", models.KindProduct, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, ok := Parse(tt.text)
			if !ok {
				t.Fatalf("Parse(%q) = not an identifier", tt.text)
			}
			if parsed.Kind != tt.kind || parsed.ID != tt.id {
				t.Errorf("Parse(%q) = {%s %d}, want {%s %d}", tt.text, parsed.Kind, parsed.ID, tt.kind, tt.id)
			}
			if parsed.Nonce != "" {
				t.Errorf("legacy form produced nonce %q, want none", parsed.Nonce)
			}
		})
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"free text", "organic tomatoes from nashik"},
		{"bare host", "https://scan.farmtrace.in"},
		{"unknown prefix", "https://scan.farmtrace.in/x/42/abc"},
		{"canonical missing nonce", "https://scan.farmtrace.in/p/42"},
		{"canonical trailing slash only", "https://scan.farmtrace.in/p/42/"},
		{"non numeric id", "https://scan.farmtrace.in/p/tomato/abc"},
		{"negative id", "https://scan.farmtrace.in/p/-1/abc"},
		{"float id", "https://scan.farmtrace.in/b/4.2/abc"},
		{"legacy non numeric id", "/verify/product/abc"},
		{"legacy unknown subject", "/verify/shipment/42"},
		{"legacy missing id", "/verify/product"},
		{"extra segments", "https://scan.farmtrace.in/p/42/abc/extra"},
		{"control character", "https://scan.farmtrace.in/p/4\x002/abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if parsed, ok := Parse(tt.text); ok {
				t.Errorf("Parse(%q) = %+v, want rejection", tt.text, parsed)
			}
		})
	}
}

func TestParseIgnoresQuery(t *testing.T) {
	parsed, ok := Parse("https://scan.farmtrace.in/b/12/abc123?utm_source=label")
	if !ok || parsed.Kind != models.KindBatch || parsed.ID != 12 || parsed.Nonce != "abc123" {
		t.Fatalf("Parse = %+v ok=%v, want batch 12 nonce abc123", parsed, ok)
	}
}

func BenchmarkMint(b *testing.B) {
	c := New(testBase)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := c.Mint(models.KindProduct, uint64(i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkParse(b *testing.B) {
	url := testBase + "/p/123456/0f8fad5b-d9cb-469f-a165-70867728950e"
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, ok := Parse(url); !ok {
			b.Fatal("parse rejected canonical url")
		}
	}
}
