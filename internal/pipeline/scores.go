package pipeline

import (
	"strings"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Maturity and cohesion buckets.
const (
	MaturityModern      = "Modern"
	MaturityEstablished = "Established"
	MaturityBasic       = "Basic"

	CohesionUnified  = "Unified"
	CohesionStandard = "Standard"
)

// Score derives the design-intelligence block. markup is inspected only for an
// <h1 tag; pageURL decides the https signal.
func Score(doc scrape.ExtractedDocument, pageURL, markup string) scrape.DesignIntelligence {
	return scrape.DesignIntelligence{
		VisualCohesion:    cohesion(len(doc.Colors), len(doc.Fonts)),
		TechnicalMaturity: maturity(len(doc.Technologies)),
		SEOReadiness:      seoReadiness(doc.Metadata, pageURL, markup),
	}
}

func seoReadiness(meta scrape.Metadata, pageURL, markup string) int {
	score := 0
	if meta.Title != "" {
		score += 20
	}
	if meta.Description != "" {
		score += 20
	}
	if len(meta.Keywords) > 0 {
		score += 10
	}
	if meta.Favicon != "" {
		score += 10
	}
	if strings.Contains(strings.ToLower(markup), "<h1") {
		score += 20
	}
	if strings.HasPrefix(strings.ToLower(pageURL), "https://") {
		score += 20
	}
	return min(score, 100)
}

func maturity(techs int) string {
	switch {
	case techs > 3:
		return MaturityModern
	case techs > 0:
		return MaturityEstablished
	default:
		return MaturityBasic
	}
}

func cohesion(colors, fonts int) string {
	if colors > 3 && fonts > 1 {
		return CohesionUnified
	}
	return CohesionStandard
}
