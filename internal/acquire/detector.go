package acquire

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Detector decides whether a Fast result should be re-acquired with Deep.
type Detector interface {
	ShouldPromote(res scrape.AcquisitionResult) bool
}

// Heuristic implements a handful of rule-based promotions for SPA shells.
type Heuristic struct {
	BodyLengthThreshold int
	MinVisibleText      int
}

// NewHeuristic creates a detector. Zero values pick the defaults.
func NewHeuristic(bodyThreshold, minVisibleText int) *Heuristic {
	if bodyThreshold <= 0 {
		bodyThreshold = 2048
	}
	if minVisibleText <= 0 {
		minVisibleText = 200
	}
	return &Heuristic{BodyLengthThreshold: bodyThreshold, MinVisibleText: minVisibleText}
}

var emptyRootMarkers = []string{
	`<div id="root"></div>`,
	`<div id="app"></div>`,
	`<div id="__next"></div>`,
	`<div id="__nuxt"></div>`,
	`<app-root></app-root>`,
}

var noscriptRe = regexp.MustCompile(`<noscript[^>]*>[^<]*(enable|activate|turn on|requires?)\s+javascript`)

// ShouldPromote implements Detector.
func (h *Heuristic) ShouldPromote(res scrape.AcquisitionResult) bool {
	if res.Placeholder {
		return false
	}
	body := res.Markup
	if strings.TrimSpace(body) == "" {
		return true
	}
	lower := strings.ToLower(body)
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(lower) {
		return true
	}
	for _, marker := range emptyRootMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	if noscriptRe.MatchString(lower) {
		return true
	}
	return len(visibleText(body)) < h.MinVisibleText
}

// scriptDensityHigh reports whether <script> elements cover at least a
// quarter of the (lowercased) document.
func scriptDensityHigh(lower string) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	coverage := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			coverage += total - start
			break
		}
		contentStart := start + tagClose + 1
		relEnd := strings.Index(lower[contentStart:], closeTag)
		next := total
		if relEnd != -1 {
			next = contentStart + relEnd + len(closeTag)
		}
		coverage += next - start
		pos = next
	}
	return coverage*100/total >= 25
}

// visibleText returns the body text outside script, style and noscript.
func visibleText(markup string) string {
	tokenizer := html.NewTokenizer(strings.NewReader(markup))
	var buf strings.Builder
	inBody := false
	skipDepth := 0
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return buf.String()
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "body":
				inBody = true
			case "script", "style", "noscript", "template":
				skipDepth++
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			switch string(name) {
			case "script", "style", "noscript", "template":
				if skipDepth > 0 {
					skipDepth--
				}
			}
		case html.TextToken:
			if inBody && skipDepth == 0 {
				if text := strings.TrimSpace(string(tokenizer.Text())); text != "" {
					buf.WriteString(text)
					buf.WriteByte(' ')
				}
			}
		}
	}
}
