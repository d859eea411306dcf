package acquire

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/extract"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// SelectorConfig tunes when the Deep strategy may still run.
type SelectorConfig struct {
	// MinDeepBudget is the least remaining budget at which Deep is attempted.
	MinDeepBudget time.Duration
	// DeepGrace is added to the remaining budget for Deep's hard context
	// deadline so the session can wind down and return partial findings.
	DeepGrace time.Duration
}

// Selector runs the acquisition state machine: the mode's primary strategy,
// its counterpart as fallback, then a plain fetch, then a placeholder.
type Selector struct {
	fast     Strategy
	deep     Strategy
	plain    Strategy
	detector Detector
	cfg      SelectorConfig
	logger   *zap.Logger
}

// NewSelector wires the strategies. deep may be nil when no browser source is configured.
func NewSelector(fast, deep, plain Strategy, detector Detector, cfg SelectorConfig, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = NewHeuristic(0, 0)
	}
	if cfg.MinDeepBudget <= 0 {
		cfg.MinDeepBudget = 10 * time.Second
	}
	if cfg.DeepGrace <= 0 {
		cfg.DeepGrace = 3 * time.Second
	}
	return &Selector{fast: fast, deep: deep, plain: plain, detector: detector, cfg: cfg, logger: logger}
}

// Acquire always returns a usable AcquisitionResult. When no strategy yielded
// markup the result is a placeholder and the error is a *scrape.AcquisitionError.
func (s *Selector) Acquire(ctx context.Context, req Request) (scrape.AcquisitionResult, error) {
	var causes []error

	switch req.Mode {
	case scrape.ModeDeep:
		for _, attempt := range []attemptFunc{s.tryDeep, s.tryFast} {
			res, err := attempt(ctx, req)
			if err == nil {
				return res, nil
			}
			causes = append(causes, err)
		}
	case scrape.ModeAuto:
		fastRes, fastErr := s.tryFast(ctx, req)
		if fastErr == nil && !s.detector.ShouldPromote(fastRes) {
			return fastRes, nil
		}
		if fastErr == nil {
			req.log(scrape.SeverityInfo, "Page looks client-rendered, switching to deep scrape...")
		} else {
			causes = append(causes, fastErr)
		}
		deepRes, deepErr := s.tryDeep(ctx, req)
		switch {
		case deepErr == nil && fastErr == nil:
			return mergeCandidates(deepRes, fastRes), nil
		case deepErr == nil:
			return deepRes, nil
		case fastErr == nil:
			req.log(scrape.SeverityWarning, "Deep scrape unavailable, keeping fast result")
			return fastRes, nil
		}
		causes = append(causes, deepErr)
	default:
		for _, attempt := range []attemptFunc{s.tryFast, s.tryDeep} {
			res, err := attempt(ctx, req)
			if err == nil {
				return res, nil
			}
			causes = append(causes, err)
		}
	}

	if s.plain != nil {
		req.log(scrape.SeverityInfo, "Trying plain fetch fallback...")
		res, err := s.plain.Acquire(ctx, req)
		if err == nil {
			req.log(scrape.SeverityInfo, "Plain fetch succeeded")
			return res, nil
		}
		causes = append(causes, err)
		req.log(scrape.SeverityWarning, "Plain fetch failed: %v", err)
	}

	acqErr := &scrape.AcquisitionError{URL: req.URL, Causes: causes}
	s.logger.Warn("all acquisition strategies failed",
		zap.String("job_id", req.JobID),
		zap.String("url", req.URL),
		zap.Error(acqErr),
	)
	req.log(scrape.SeverityError, "Could not retrieve page content, using placeholder")
	return Placeholder(req.URL), acqErr
}

type attemptFunc func(context.Context, Request) (scrape.AcquisitionResult, error)

func (s *Selector) tryFast(ctx context.Context, req Request) (scrape.AcquisitionResult, error) {
	if s.fast == nil {
		return scrape.AcquisitionResult{}, errors.New("fast strategy not configured")
	}
	req.log(scrape.SeverityInfo, "Attempting fast scrape...")
	res, err := s.fast.Acquire(ctx, req)
	if err != nil {
		req.log(scrape.SeverityWarning, "Fast scrape failed: %v", err)
		return res, err
	}
	req.log(scrape.SeverityInfo, "Fast scrape succeeded: %d images, %d stylesheets", len(res.ImageURLs), len(res.Stylesheets))
	return res, nil
}

func (s *Selector) tryDeep(ctx context.Context, req Request) (scrape.AcquisitionResult, error) {
	if s.deep == nil {
		req.log(scrape.SeverityWarning, "Deep scrape skipped: no browser source configured")
		return scrape.AcquisitionResult{}, scrape.ErrNoBrowserAvailable
	}
	gov := req.governor()
	if remaining := gov.Remaining(); remaining < s.cfg.MinDeepBudget {
		req.log(scrape.SeverityWarning, "Deep scrape skipped: only %s of time budget left", remaining.Round(time.Millisecond))
		return scrape.AcquisitionResult{}, fmt.Errorf("deep skipped with %s left: %w", remaining, scrape.ErrTimeBudgetExceeded)
	}

	req.log(scrape.SeverityInfo, "Launching browser for deep scrape...")
	deepCtx, cancel := context.WithTimeout(ctx, gov.Remaining()+s.cfg.DeepGrace)
	defer cancel()
	res, err := s.deep.Acquire(deepCtx, req)
	if err != nil {
		req.log(scrape.SeverityWarning, "Deep scrape failed: %v", err)
		return res, err
	}
	if res.Partial {
		req.log(scrape.SeverityWarning, "Deep scrape truncated by time budget, using partial findings")
	}
	req.log(scrape.SeverityInfo, "Deep scrape succeeded: %d images, %d colors, %d fonts",
		len(res.ImageURLs), len(res.ColorTokens), len(res.FontFamilies))
	return res, nil
}

// mergeCandidates keeps the rendered markup and adds static-only hints.
func mergeCandidates(deep, fast scrape.AcquisitionResult) scrape.AcquisitionResult {
	out := deep
	out.ImageURLs = extract.Unique(append(deep.ImageURLs, fast.ImageURLs...))
	out.FontFamilies = extract.Unique(append(deep.FontFamilies, fast.FontFamilies...))
	out.ColorTokens = extract.Unique(append(deep.ColorTokens, fast.ColorTokens...))
	out.Stylesheets = extract.Unique(append(deep.Stylesheets, fast.Stylesheets...))
	if fast.InlineCSS != "" {
		out.InlineCSS = deep.InlineCSS + "\n" + fast.InlineCSS
	}
	return out
}
