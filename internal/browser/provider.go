// Package browser supplies controllable headless browser sessions. The launch
// source is chosen once from configuration; callers only see Provider.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Source names where browser sessions come from.
type Source string

// Supported launch sources.
const (
	SourceNone    Source = "none"
	SourceRemote  Source = "remote"
	SourceManaged Source = "managed"
	SourceLocal   Source = "local"
)

// ParseSource validates a configured source name.
func ParseSource(raw string) (Source, error) {
	switch src := Source(strings.ToLower(strings.TrimSpace(raw))); src {
	case SourceNone, SourceRemote, SourceManaged, SourceLocal:
		return src, nil
	case "":
		return SourceNone, nil
	default:
		return "", fmt.Errorf("unknown browser source %q", raw)
	}
}

// Config controls session creation.
type Config struct {
	Source        Source
	WSEndpoint    string
	ExecPath      string
	DownloadDir   string
	MaxParallel   int
	LaunchTimeout time.Duration
	NoSandbox     bool
}

// Provider hands out browser sessions.
type Provider interface {
	Name() string
	Obtain(ctx context.Context) (*Session, error)
}

// Session is one controllable browser tab. Close must be called on every exit
// path; it is idempotent.
type Session struct {
	ctx       context.Context
	closers   []func()
	closeOnce sync.Once
}

// NewSession wraps a chromedp tab context. closers run in reverse order, once,
// when the session is closed.
func NewSession(ctx context.Context, closers ...func()) *Session {
	return &Session{ctx: ctx, closers: closers}
}

// Context returns the chromedp context bound to the session's tab.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close releases the tab and, depending on the source, the browser process.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		for i := len(s.closers) - 1; i >= 0; i-- {
			s.closers[i]()
		}
	})
}

// NewProvider builds the provider for cfg.Source.
func NewProvider(cfg Config, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.LaunchTimeout <= 0 {
		cfg.LaunchTimeout = 20 * time.Second
	}
	switch cfg.Source {
	case SourceNone, "":
		return Unavailable{}, nil
	case SourceRemote:
		if cfg.WSEndpoint == "" {
			return nil, errors.New("remote browser source requires ws_endpoint")
		}
		return newChromeProvider(cfg, remoteAllocator(cfg.WSEndpoint), logger), nil
	case SourceManaged:
		return newChromeProvider(cfg, managedAllocator(cfg), logger), nil
	case SourceLocal:
		return newChromeProvider(cfg, localAllocator(cfg), logger), nil
	default:
		return nil, fmt.Errorf("unknown browser source %q", cfg.Source)
	}
}

// Unavailable never yields a session.
type Unavailable struct{}

// Name implements Provider.
func (Unavailable) Name() string { return string(SourceNone) }

// Obtain always fails with scrape.ErrNoBrowserAvailable.
func (Unavailable) Obtain(context.Context) (*Session, error) {
	return nil, fmt.Errorf("browser source disabled: %w", scrape.ErrNoBrowserAvailable)
}

// allocator starts (or connects to) a browser and returns a chromedp allocator
// context plus a release func.
type allocator func(ctx context.Context) (context.Context, func(), error)

type chromeProvider struct {
	cfg      Config
	allocate allocator
	limiter  chan struct{}
	logger   *zap.Logger
}

func newChromeProvider(cfg Config, alloc allocator, logger *zap.Logger) *chromeProvider {
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &chromeProvider{cfg: cfg, allocate: alloc, limiter: limiter, logger: logger}
}

func (p *chromeProvider) Name() string {
	return string(p.cfg.Source)
}

// Obtain allocates a browser and opens a tab, verifying it answers before the
// launch timeout.
func (p *chromeProvider) Obtain(ctx context.Context) (*Session, error) {
	if err := p.acquire(ctx); err != nil {
		return nil, err
	}
	session := NewSession(ctx, p.release)

	allocCtx, releaseAlloc, err := p.allocate(context.Background())
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("%s browser: %w: %v", p.cfg.Source, scrape.ErrNoBrowserAvailable, err)
	}
	session.closers = append(session.closers, releaseAlloc)

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	session.ctx = tabCtx
	stopForward := forwardCancel(ctx, tabCancel)
	session.closers = append(session.closers, func() {
		stopForward()
		if err := chromedp.Cancel(tabCtx); err != nil && !errors.Is(err, context.Canceled) {
			p.logger.Debug("browser tab close failed", zap.Error(err))
		}
		tabCancel()
	})

	// The first Run starts the browser and binds it to tabCtx, so it must not
	// carry its own deadline.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()
	timer := time.NewTimer(p.cfg.LaunchTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("%s browser: %w: %v", p.cfg.Source, scrape.ErrNoBrowserAvailable, err)
		}
	case <-timer.C:
		session.Close()
		return nil, fmt.Errorf("%s browser launch after %s: %w", p.cfg.Source, p.cfg.LaunchTimeout, scrape.ErrNoBrowserAvailable)
	case <-ctx.Done():
		session.Close()
		return nil, fmt.Errorf("browser launch canceled: %w", ctx.Err())
	}
	source := p.Name()
	metrics.BrowserSessionOpened(source)
	session.closers = append(session.closers, func() { metrics.BrowserSessionClosed(source) })
	return session, nil
}

func (p *chromeProvider) acquire(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	select {
	case p.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (p *chromeProvider) release() {
	if p.limiter == nil {
		return
	}
	select {
	case <-p.limiter:
	default:
	}
}

// forwardCancel cancels the tab when parent ends first.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
