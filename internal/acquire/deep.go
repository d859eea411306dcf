package acquire

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/browser"
	"github.com/JakeFAU/sitelens/internal/budget"
	"github.com/JakeFAU/sitelens/internal/extract"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// DeepConfig controls the rendered acquisition pass.
type DeepConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
	ScrollStep        int
	ScrollInterval    time.Duration
	MaxScroll         int
	ScrollTimeout     time.Duration
	SettleDelay       time.Duration
	SampleLimit       int
	EvalTimeout       time.Duration
	MarkupTimeout     time.Duration
	Stealth           bool
}

func (c DeepConfig) withDefaults() DeepConfig {
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.ScrollStep <= 0 {
		c.ScrollStep = 400
	}
	if c.ScrollInterval <= 0 {
		c.ScrollInterval = 100 * time.Millisecond
	}
	if c.MaxScroll <= 0 {
		c.MaxScroll = 15000
	}
	if c.ScrollTimeout <= 0 {
		c.ScrollTimeout = 20 * time.Second
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = 2000
	}
	if c.EvalTimeout <= 0 {
		c.EvalTimeout = 10 * time.Second
	}
	if c.MarkupTimeout <= 0 {
		c.MarkupTimeout = 5 * time.Second
	}
	return c
}

// Deep renders the page in a headless browser session it owns exclusively.
type Deep struct {
	cfg      DeepConfig
	provider browser.Provider
	logger   *zap.Logger
}

// NewDeep builds the Deep strategy around a browser provider.
func NewDeep(cfg DeepConfig, provider browser.Provider, logger *zap.Logger) *Deep {
	if logger == nil {
		logger = zap.NewNop()
	}
	if provider == nil {
		provider = browser.Unavailable{}
	}
	return &Deep{cfg: cfg.withDefaults(), provider: provider, logger: logger}
}

// Name implements Strategy.
func (d *Deep) Name() string { return "deep" }

// domFindings mirrors the object returned by domSurveyScript.
type domFindings struct {
	Colors []string `json:"colors"`
	Fonts  []string `json:"fonts"`
	Images []string `json:"images"`
	CSS    string   `json:"css"`
}

// Acquire implements Strategy. Navigation errors and budget trips are logged
// as warnings; whatever was gathered before them is returned with Partial set.
// The session is closed on every path.
func (d *Deep) Acquire(ctx context.Context, req Request) (scrape.AcquisitionResult, error) {
	gov := req.governor()
	session, err := d.provider.Obtain(ctx)
	if err != nil {
		return scrape.AcquisitionResult{}, err
	}
	defer session.Close()

	tab := session.Context()
	observer := newNetworkObserver()
	chromedp.ListenTarget(tab, observer.captureEvent)

	if err := chromedp.Run(tab, d.setupAction()); err != nil {
		return scrape.AcquisitionResult{}, fmt.Errorf("prepare tab: %w", err)
	}

	result := scrape.AcquisitionResult{URL: req.URL, Strategy: d.Name()}
	var findings domFindings

	d.navigate(tab, gov, req)

	stages := []struct {
		name    string
		timeout time.Duration
		action  chromedp.Action
	}{
		{"scroll", d.cfg.ScrollTimeout, d.scrollAction()},
		{"settle", d.cfg.SettleDelay + time.Second, chromedp.Sleep(gov.Bound(d.cfg.SettleDelay))},
		{"evaluate", d.cfg.EvalTimeout, d.surveyAction(&findings)},
	}
	for _, stage := range stages {
		if err := gov.Check(stage.name); err != nil {
			result.Partial = true
			metrics.ObserveBudgetTrip(stage.name)
			req.log(scrape.SeverityWarning, "Deep scrape stopped before %s: time budget exceeded", stage.name)
			break
		}
		if stage.timeout <= 0 {
			continue
		}
		stageCtx, cancel := context.WithTimeout(tab, gov.Bound(stage.timeout))
		err := chromedp.Run(stageCtx, stage.action)
		cancel()
		if err != nil {
			if gov.Exceeded() {
				result.Partial = true
			}
			req.log(scrape.SeverityWarning, "Deep %s step failed: %v", stage.name, err)
			d.logger.Warn("deep stage failed",
				zap.String("job_id", req.JobID),
				zap.String("stage", stage.name),
				zap.Error(err),
			)
		}
	}

	markupCtx, cancel := context.WithTimeout(tab, d.cfg.MarkupTimeout)
	defer cancel()
	if err := chromedp.Run(markupCtx, chromedp.OuterHTML("html", &result.Markup, chromedp.ByQuery)); err != nil {
		req.log(scrape.SeverityWarning, "Deep scrape could not capture rendered markup: %v", err)
	}

	seen := observer.snapshot()
	result.ImageURLs = extract.Unique(append(findings.Images, seen.images...))
	result.ColorTokens = extract.Unique(findings.Colors)
	result.FontFamilies = extract.Unique(findings.Fonts)
	result.FontFiles = seen.fonts
	result.Stylesheets = seen.stylesheets
	result.InlineCSS = findings.CSS

	if strings.TrimSpace(result.Markup) == "" {
		return result, errors.New("deep scrape produced no markup")
	}
	return result, nil
}

func (d *Deep) setupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if err := emulation.SetUserAgentOverride(d.cfg.UserAgent).WithAcceptLanguage("en-US,en;q=0.9").Do(ctx); err != nil {
			return fmt.Errorf("set user-agent: %w", err)
		}
		if err := emulation.SetDeviceMetricsOverride(1920, 1080, 1, false).Do(ctx); err != nil {
			return fmt.Errorf("set viewport: %w", err)
		}
		if d.cfg.Stealth {
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx); err != nil {
				return fmt.Errorf("inject stealth: %w", err)
			}
		}
		return nil
	})
}

// navigate waits for the load event. Failures only produce a warning.
func (d *Deep) navigate(tab context.Context, gov *budget.Governor, req Request) {
	navCtx, cancel := context.WithTimeout(tab, gov.Bound(d.cfg.NavigationTimeout))
	defer cancel()
	err := chromedp.Run(navCtx,
		chromedp.Navigate(req.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err == nil {
		return
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", scrape.ErrNavigationTimeout, gov.Bound(d.cfg.NavigationTimeout))
	}
	req.log(scrape.SeverityWarning, "Navigation warning: %v", err)
	d.logger.Warn("deep navigation incomplete",
		zap.String("job_id", req.JobID),
		zap.String("url", req.URL),
		zap.Error(err),
	)
}

func (d *Deep) scrollAction() chromedp.Action {
	script := buildScrollScript(d.cfg.ScrollStep, d.cfg.MaxScroll, d.cfg.ScrollInterval)
	var travelled float64
	return chromedp.Evaluate(script, &travelled, awaitPromise)
}

func (d *Deep) surveyAction(dst *domFindings) chromedp.Action {
	return chromedp.Evaluate(buildDOMSurveyScript(d.cfg.SampleLimit), dst)
}

func awaitPromise(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// networkObserver passively records image, font and stylesheet responses.
type networkObserver struct {
	mu          sync.Mutex
	seen        map[string]struct{}
	images      []string
	fonts       []string
	stylesheets []string
}

type networkSnapshot struct {
	images      []string
	fonts       []string
	stylesheets []string
}

func newNetworkObserver() *networkObserver {
	return &networkObserver{seen: make(map[string]struct{})}
}

func (o *networkObserver) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		o.capture(resp)
	}
}

func (o *networkObserver) capture(ev *network.EventResponseReceived) {
	if ev == nil || ev.Response == nil {
		return
	}
	url := ev.Response.URL
	if url == "" || strings.HasPrefix(url, "data:") || ev.Response.Status >= 400 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, dup := o.seen[url]; dup {
		return
	}
	switch ev.Type {
	case network.ResourceTypeImage:
		o.images = append(o.images, url)
	case network.ResourceTypeFont:
		o.fonts = append(o.fonts, url)
	case network.ResourceTypeStylesheet:
		o.stylesheets = append(o.stylesheets, url)
	default:
		return
	}
	o.seen[url] = struct{}{}
}

func (o *networkObserver) snapshot() networkSnapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return networkSnapshot{
		images:      append([]string(nil), o.images...),
		fonts:       append([]string(nil), o.fonts...),
		stylesheets: append([]string(nil), o.stylesheets...),
	}
}
