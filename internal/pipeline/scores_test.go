package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

func TestSEOReadiness(t *testing.T) {
	t.Parallel()

	full := scrape.Metadata{Title: "T", Description: "D", Keywords: []string{"k"}, Favicon: "/favicon.ico"}
	tests := []struct {
		name   string
		meta   scrape.Metadata
		url    string
		markup string
		want   int
	}{
		{"everything present", full, "https://example.com", "<H1>Hi</H1>", 100},
		{"plain http", full, "http://example.com", "<h1>Hi</h1>", 80},
		{"no heading", full, "https://example.com", "<h2>Hi</h2>", 80},
		{"title only", scrape.Metadata{Title: "T"}, "http://example.com", "", 20},
		{"nothing", scrape.Metadata{}, "http://example.com", "", 0},
		{"favicon and https", scrape.Metadata{Favicon: "/f.ico"}, "HTTPS://example.com", "", 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, seoReadiness(tt.meta, tt.url, tt.markup))
		})
	}
}

func TestMaturityBuckets(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MaturityBasic, maturity(0))
	assert.Equal(t, MaturityEstablished, maturity(1))
	assert.Equal(t, MaturityEstablished, maturity(3))
	assert.Equal(t, MaturityModern, maturity(4))
}

func TestCohesionBuckets(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CohesionUnified, cohesion(4, 2))
	assert.Equal(t, CohesionStandard, cohesion(3, 5))
	assert.Equal(t, CohesionStandard, cohesion(10, 1))
}

func TestScoreCombinesSignals(t *testing.T) {
	t.Parallel()

	doc := scrape.ExtractedDocument{
		Metadata:     scrape.Metadata{Title: "Acme"},
		Colors:       []string{"#000000", "#ffffff", "#ff0000", "#00ff00"},
		Fonts:        []string{"Inter", "Roboto"},
		Technologies: []string{"React"},
	}
	got := Score(doc, "https://acme.test", "<h1>Acme</h1>")
	assert.Equal(t, scrape.DesignIntelligence{
		VisualCohesion:    CohesionUnified,
		TechnicalMaturity: MaturityEstablished,
		SEOReadiness:      60,
	}, got)
}
