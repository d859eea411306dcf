package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// DefaultFavicon is used when the document declares no icon link.
const DefaultFavicon = "/favicon.ico"

var faviconSelectors = []string{
	`link[rel="apple-touch-icon"]`,
	`link[rel="icon"]`,
	`link[rel*="icon"]`,
}

// Metadata reads title, description, keywords and favicon from doc. Relative
// favicons are resolved against baseURL when it is an absolute URL.
func Metadata(doc *goquery.Document, baseURL string) scrape.Metadata {
	meta := scrape.Metadata{Keywords: []string{}}

	meta.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if meta.Title == "" {
		meta.Title = metaContent(doc, `meta[property="og:title"]`)
	}
	meta.Description = metaContent(doc, `meta[name="description"]`)
	if meta.Description == "" {
		meta.Description = metaContent(doc, `meta[property="og:description"]`)
	}

	if raw := metaContent(doc, `meta[name="keywords"]`); raw != "" {
		for _, kw := range strings.Split(raw, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				meta.Keywords = append(meta.Keywords, kw)
			}
		}
	}

	meta.Favicon = DefaultFavicon
	for _, sel := range faviconSelectors {
		if href, ok := doc.Find(sel).First().Attr("href"); ok && strings.TrimSpace(href) != "" {
			meta.Favicon = strings.TrimSpace(href)
			break
		}
	}
	meta.Favicon = Resolve(baseURL, meta.Favicon)
	return meta
}

func metaContent(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// Resolve makes ref absolute against base. It returns ref unchanged when it is
// already absolute, when base is not an absolute URL, or when either fails to parse.
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:") {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil || !baseURL.IsAbs() {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
