package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// plainUserAgent is deliberately minimal; some origins that reject
// browser-like clients still answer it.
const plainUserAgent = "Mozilla/5.0"

// Plain is the last-resort static fetch: one GET, no DOM hints.
type Plain struct {
	client   *http.Client
	maxBytes int64
}

// NewPlain builds the fallback fetcher.
func NewPlain(transport http.RoundTripper, timeout time.Duration, maxBytes int64) *Plain {
	if transport == nil {
		transport = NewTransport(false)
	}
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Plain{client: &http.Client{Transport: transport, Timeout: timeout}, maxBytes: maxBytes}
}

// Name implements Strategy.
func (p *Plain) Name() string { return "plain" }

// Acquire implements Strategy.
func (p *Plain) Acquire(ctx context.Context, req Request) (scrape.AcquisitionResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return scrape.AcquisitionResult{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("User-Agent", plainUserAgent)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return scrape.AcquisitionResult{}, fmt.Errorf("plain fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return scrape.AcquisitionResult{}, fmt.Errorf("plain fetch %s: status %d", req.URL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return scrape.AcquisitionResult{}, fmt.Errorf("read body: %w", err)
	}
	return scrape.AcquisitionResult{
		URL:      req.URL,
		Strategy: p.Name(),
		Markup:   string(body),
	}, nil
}

// Placeholder is substituted when every strategy failed so that extraction
// and persistence still run.
func Placeholder(url string) scrape.AcquisitionResult {
	escaped := html.EscapeString(url)
	return scrape.AcquisitionResult{
		URL:      url,
		Strategy: "placeholder",
		Markup: "<html><head><title>" + escaped + "</title></head><body><p>Scrape failed to retrieve content for " +
			escaped + "</p></body></html>",
		Placeholder: true,
	}
}
