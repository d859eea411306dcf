package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

const (
	minParagraphLen = 20
	summaryLen      = 500
)

var (
	socialRe = regexp.MustCompile(`(?i)facebook|twitter|linkedin|instagram|youtube|github|tiktok`)
)

// Content collects headings, paragraphs, classified links and images.
func Content(doc *goquery.Document, baseURL string) scrape.Content {
	var out scrape.Content

	levels := []*[]string{
		&out.Headings.H1, &out.Headings.H2, &out.Headings.H3,
		&out.Headings.H4, &out.Headings.H5, &out.Headings.H6,
	}
	for i, dst := range levels {
		*dst = []string{}
		doc.Find("h" + strconv.Itoa(i+1)).Each(func(_ int, s *goquery.Selection) {
			if text := collapseSpace(s.Text()); text != "" {
				*dst = append(*dst, text)
			}
		})
	}

	out.Paragraphs = []string{}
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		if text := collapseSpace(s.Text()); len([]rune(text)) > minParagraphLen {
			out.Paragraphs = append(out.Paragraphs, text)
		}
	})
	out.Summary = summarize(out.Paragraphs)

	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hrefs = append(hrefs, href)
	})
	out.Links = ClassifyLinks(hrefs, baseURL)

	out.Images = []scrape.Image{}
	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		out.Images = append(out.Images, scrape.Image{Src: src, Alt: strings.TrimSpace(s.AttrOr("alt", ""))})
	})
	return out
}

// ClassifyLinks partitions usable hrefs into social, internal and external
// lists. Only empty hrefs, a bare "#" and javascript: hrefs are dropped;
// fragments, mailto: and tel: links count as internal.
func ClassifyLinks(hrefs []string, baseURL string) scrape.Links {
	baseHost := ""
	if u, err := url.Parse(baseURL); err == nil {
		baseHost = strings.ToLower(u.Hostname())
	}
	internal := newOrderedSet(0, false)
	external := newOrderedSet(0, false)
	social := newOrderedSet(0, false)

	for _, href := range hrefs {
		href = strings.TrimSpace(href)
		if isJunkHref(href) {
			continue
		}
		switch {
		case socialRe.MatchString(href):
			social.add(href)
		case isInternal(href, baseURL, baseHost):
			internal.add(href)
		default:
			external.add(href)
		}
	}

	links := scrape.Links{
		Internal: internal.list(),
		External: external.list(),
		Social:   social.list(),
	}
	links.TotalCount = len(links.Internal) + len(links.External) + len(links.Social)
	return links
}

func isJunkHref(href string) bool {
	return href == "" || href == "#" || strings.HasPrefix(href, "javascript:")
}

func isInternal(href, baseURL, baseHost string) bool {
	if strings.HasPrefix(href, "/") && !strings.HasPrefix(href, "//") {
		return true
	}
	if baseURL != "" && strings.HasPrefix(href, baseURL) {
		return true
	}
	lower := strings.ToLower(href)
	if !strings.HasPrefix(lower, "http") && !strings.HasPrefix(lower, "//") {
		return true
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return baseHost != "" && strings.EqualFold(u.Hostname(), baseHost)
}

func summarize(paragraphs []string) string {
	joined := []rune(strings.Join(paragraphs, " "))
	if len(joined) <= summaryLen {
		return string(joined)
	}
	return strings.TrimSpace(string(joined[:summaryLen])) + "..."
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Scripts returns the absolute src of every external <script>, in document order.
func Scripts(markup, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return []string{}
	}
	set := newOrderedSet(0, false)
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		src := strings.TrimSpace(s.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		set.add(Resolve(baseURL, src))
	})
	return set.list()
}

// MaxLinks bounds the flat link list carried in the result artifact.
const MaxLinks = 100

// FlatLinks resolves every classified link against baseURL and returns them
// deduplicated, internal first, capped at MaxLinks.
func FlatLinks(links scrape.Links, baseURL string) []string {
	set := newOrderedSet(MaxLinks, false)
	for _, group := range [][]string{links.Internal, links.External, links.Social} {
		for _, href := range group {
			set.add(Resolve(baseURL, href))
		}
	}
	return set.list()
}
