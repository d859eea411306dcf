package acquire

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitelens/internal/extract"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// FastConfig controls the static fetch.
type FastConfig struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int
	Transport    http.RoundTripper
}

// Fast fetches the page once over HTTP and reads asset hints from the static
// DOM without running scripts.
type Fast struct {
	cfg           FastConfig
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

var imageHintSelectors = strings.Join([]string{
	`meta[property="og:image"]`,
	`meta[property="og:image:url"]`,
	`meta[property="og:image:secure_url"]`,
	`meta[name="twitter:image"]`,
	`meta[name="twitter:image:src"]`,
}, ", ")

// NewFast builds the Fast strategy.
func NewFast(cfg FastConfig) *Fast {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 10 << 20
	}
	if cfg.Transport == nil {
		cfg.Transport = NewTransport(false)
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(cfg.MaxBodyBytes),
		colly.UserAgent(cfg.UserAgent),
	)
	c.WithTransport(cfg.Transport)
	return &Fast{cfg: cfg, baseCollector: c}
}

// Name implements Strategy.
func (f *Fast) Name() string { return "fast" }

// fastPage accumulates everything the collector callbacks see for one visit.
type fastPage struct {
	status      int
	body        []byte
	finalURL    string
	images      []string
	stylesheets []string
	css         strings.Builder
	styleAttrs  strings.Builder
	err         error
}

// Acquire implements Strategy. Non-2xx responses, timeouts and transport
// errors fail the strategy.
func (f *Fast) Acquire(ctx context.Context, req Request) (scrape.AcquisitionResult, error) {
	page := &fastPage{}
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.ParseHTTPErrorResponse = true
	collector.MaxBodySize = f.cfg.MaxBodyBytes
	collector.UserAgent = f.cfg.UserAgent
	collector.Context = ctx
	collector.SetRequestTimeout(f.cfg.Timeout)
	f.configureCollectorHooks(collector, page)

	if err := f.runCollector(ctx, collector, req.URL); err != nil {
		return scrape.AcquisitionResult{}, err
	}
	if page.err != nil {
		return scrape.AcquisitionResult{}, page.err
	}
	if page.status < 200 || page.status >= 300 {
		return scrape.AcquisitionResult{}, fmt.Errorf("fast fetch %s: status %d", req.URL, page.status)
	}

	css := page.css.String()
	finalURL := page.finalURL
	if finalURL == "" {
		finalURL = req.URL
	}
	return scrape.AcquisitionResult{
		URL:          finalURL,
		Strategy:     f.Name(),
		Markup:       string(page.body),
		InlineCSS:    css,
		ImageURLs:    extract.Unique(page.images),
		FontFamilies: extract.Unique(extract.DeclaredFamilies(css + "\n" + page.styleAttrs.String())),
		ColorTokens:  extract.ColorTokens(page.styleAttrs.String()),
		Stylesheets:  extract.Unique(page.stylesheets),
	}, nil
}

func (f *Fast) configureCollectorHooks(hooks collectorHooks, page *fastPage) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, value := range browserHeaders {
			r.Headers.Set(key, value)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		page.status = r.StatusCode
		page.body = append([]byte(nil), r.Body...)
		page.finalURL = r.Request.URL.String()
	})

	hooks.OnHTML("img", func(e *colly.HTMLElement) {
		for _, attr := range []string{"src", "data-src", "data-original", "data-lazy-src"} {
			page.addImage(e, e.Attr(attr))
		}
		for _, attr := range []string{"srcset", "data-srcset"} {
			for _, u := range srcsetURLs(e.Attr(attr)) {
				page.addImage(e, u)
			}
		}
	})
	hooks.OnHTML("picture source[srcset]", func(e *colly.HTMLElement) {
		for _, u := range srcsetURLs(e.Attr("srcset")) {
			page.addImage(e, u)
		}
	})
	hooks.OnHTML(imageHintSelectors, func(e *colly.HTMLElement) {
		page.addImage(e, e.Attr("content"))
	})
	hooks.OnHTML(`link[rel*="icon"]`, func(e *colly.HTMLElement) {
		page.addImage(e, e.Attr("href"))
	})
	hooks.OnHTML(`link[rel="stylesheet"], link[as="style"]`, func(e *colly.HTMLElement) {
		if u := e.Request.AbsoluteURL(e.Attr("href")); u != "" {
			page.stylesheets = append(page.stylesheets, u)
		}
	})
	hooks.OnHTML("style", func(e *colly.HTMLElement) {
		page.css.WriteString(e.Text)
		page.css.WriteByte('\n')
	})
	hooks.OnHTML("[style]", func(e *colly.HTMLElement) {
		page.styleAttrs.WriteString(e.Attr("style"))
		page.styleAttrs.WriteString(";\n")
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			page.status = r.StatusCode
		}
		page.err = fmt.Errorf("fast fetch: %w", err)
	})
}

func (p *fastPage) addImage(e *colly.HTMLElement, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return
	}
	if u := e.Request.AbsoluteURL(raw); u != "" {
		p.images = append(p.images, u)
	}
}

func (f *Fast) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fast fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("fast fetch %s: %w", url, err)
		}
		return nil
	}
}
