package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
)

type signature struct {
	name      string
	implies   []string
	selectors []cascadia.Selector
	markup    []string
	css       []string
	generator string
}

func selectors(raw ...string) []cascadia.Selector {
	out := make([]cascadia.Selector, 0, len(raw))
	for _, s := range raw {
		out = append(out, cascadia.MustCompile(s))
	}
	return out
}

// Matching is independent per row; order fixes the output order.
var signatures = []signature{
	{
		name:      "Next.js",
		implies:   []string{"React"},
		selectors: selectors(`script[src*="_next/static"]`, `div#__next`, `meta[name="next-head-count"]`),
		markup:    []string{"/_next/static/", "__next_data__"},
	},
	{
		name:      "Gatsby",
		implies:   []string{"React"},
		selectors: selectors(`div#___gatsby`),
		markup:    []string{"/page-data/app-data.json"},
		generator: "gatsby",
	},
	{
		name: "React",
		selectors: selectors(`[data-reactroot]`, `#react-root`,
			`script[src*="react.production.min.js"]`, `script[src*="react.development.js"]`),
		markup: []string{"data-reactroot", "react-dom.production.min.js"},
	},
	{
		name:      "Nuxt.js",
		implies:   []string{"Vue.js"},
		selectors: selectors(`div#__nuxt`, `script[src*="/_nuxt/"]`),
		markup:    []string{"window.__nuxt__"},
	},
	{
		name:      "Vue.js",
		selectors: selectors(`[data-v-app]`, `script[src*="vue.global"]`, `script[src*="vue.min.js"]`),
		markup:    []string{"data-v-", "__vue__", "vue.js"},
	},
	{
		name:      "SvelteKit",
		implies:   []string{"Svelte"},
		selectors: selectors(`script[src*="/_app/immutable/"]`, `link[href*="/_app/immutable/"]`),
		markup:    []string{"__sveltekit"},
	},
	{
		name:      "Angular",
		selectors: selectors(`[ng-version]`, `[ng-app]`, `[ng-controller]`),
		markup:    []string{"_ngcontent-", "ng-version="},
	},
	{
		name:   "Tailwind CSS",
		markup: []string{"tailwind", "--tw-"},
		css:    []string{"--tw-", "tw-bg-"},
	},
	{
		name:      "Bootstrap",
		selectors: selectors(`link[href*="bootstrap"]`, `script[src*="bootstrap"]`),
		markup:    []string{"data-bs-toggle", "bootstrap.min"},
		css:       []string{"--bs-"},
	},
	{
		name:      "jQuery",
		selectors: selectors(`script[src*="jquery"]`),
	},
	{
		name:      "WordPress",
		markup:    []string{"wp-content", "wp-includes", "wp-block"},
		generator: "wordpress",
	},
	{
		name:      "Shopify",
		markup:    []string{"shopify-section", "cdn.shopify.com", "shopify.checkout"},
		generator: "shopify",
	},
	{
		name:      "Webflow",
		selectors: selectors(`html[data-wf-site]`),
		generator: "webflow",
	},
	{
		name:   "Google Analytics",
		markup: []string{"googletagmanager.com", "google-analytics.com", "gtag("},
	},
}

// Technologies returns the deduplicated technology tags whose signatures match
// doc, the raw markup or css text.
func Technologies(doc *goquery.Document, markup, css string) []string {
	lowerMarkup := strings.ToLower(markup)
	lowerCSS := strings.ToLower(css)
	generator := ""
	if doc != nil {
		generator = strings.ToLower(metaContent(doc, `meta[name="generator"]`))
	}

	found := newOrderedSet(0, false)
	for _, sig := range signatures {
		if !sig.matches(doc, lowerMarkup, lowerCSS, generator) {
			continue
		}
		found.add(sig.name)
		for _, implied := range sig.implies {
			found.add(implied)
		}
	}
	return found.list()
}

func (s signature) matches(doc *goquery.Document, markup, css, generator string) bool {
	if s.generator != "" && strings.Contains(generator, s.generator) {
		return true
	}
	if containsAny(markup, s.markup) || containsAny(css, s.css) {
		return true
	}
	if doc == nil {
		return false
	}
	for _, sel := range s.selectors {
		if doc.FindMatcher(sel).Length() > 0 {
			return true
		}
	}
	return false
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
