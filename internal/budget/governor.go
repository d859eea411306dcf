// Package budget implements the wall-clock governor shared by every stage of
// a scrape run.
package budget

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/sitelens/internal/clock/system"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Config controls the governor thresholds.
//   - Ceiling: total wall-clock allowance for one run (default 55s).
//   - ReduceBelow: when less than this remains before downloads, the asset cap drops.
//   - SkipBelow: when less than this remains before downloads, they are skipped.
//   - FullAssetCap / ReducedAssetCap: candidate caps for the two regimes (100 / 20).
type Config struct {
	Ceiling         time.Duration
	ReduceBelow     time.Duration
	SkipBelow       time.Duration
	FullAssetCap    int
	ReducedAssetCap int
}

const (
	defaultCeiling         = 55 * time.Second
	defaultReduceBelow     = 20 * time.Second
	defaultSkipBelow       = 6 * time.Second
	defaultFullAssetCap    = 100
	defaultReducedAssetCap = 20
)

// Governor answers "how much time is left" for a single run. It is safe for
// concurrent use; all state is fixed at construction.
type Governor struct {
	cfg   Config
	clock scrape.Clock
	start time.Time
}

// Start begins a budget window at the clock's current time.
func Start(cfg Config, clock scrape.Clock) *Governor {
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = defaultCeiling
	}
	if cfg.ReduceBelow <= 0 {
		cfg.ReduceBelow = defaultReduceBelow
	}
	if cfg.SkipBelow <= 0 {
		cfg.SkipBelow = defaultSkipBelow
	}
	if cfg.FullAssetCap <= 0 {
		cfg.FullAssetCap = defaultFullAssetCap
	}
	if cfg.ReducedAssetCap <= 0 || cfg.ReducedAssetCap > cfg.FullAssetCap {
		cfg.ReducedAssetCap = min(defaultReducedAssetCap, cfg.FullAssetCap)
	}
	clock = system.Or(clock)
	return &Governor{cfg: cfg, clock: clock, start: clock.Now()}
}

// Elapsed returns the time spent since Start.
func (g *Governor) Elapsed() time.Duration {
	return g.clock.Now().Sub(g.start)
}

// Remaining returns the time left before the ceiling, never negative.
func (g *Governor) Remaining() time.Duration {
	return max(g.cfg.Ceiling-g.Elapsed(), 0)
}

// Exceeded reports whether the ceiling has passed.
func (g *Governor) Exceeded() bool {
	return g.Elapsed() >= g.cfg.Ceiling
}

// Check returns scrape.ErrTimeBudgetExceeded once the ceiling has passed.
func (g *Governor) Check(stage string) error {
	if g.Exceeded() {
		return fmt.Errorf("%s after %s: %w", stage, g.Elapsed().Round(time.Millisecond), scrape.ErrTimeBudgetExceeded)
	}
	return nil
}

// Bound clamps a stage timeout to the remaining budget.
func (g *Governor) Bound(d time.Duration) time.Duration {
	return min(d, g.Remaining())
}

// WithDeadline derives a context that expires when the budget does.
func (g *Governor) WithDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.Remaining())
}

// CandidateCap is the most image candidates a run may carry, whether or not
// they are downloaded.
func (g *Governor) CandidateCap() int {
	return g.cfg.FullAssetCap
}

// AssetPlan decides how many image candidates the download phase may attempt.
// skip is true when too little time is left to download anything.
func (g *Governor) AssetPlan() (limit int, skip bool) {
	remaining := g.Remaining()
	switch {
	case remaining < g.cfg.SkipBelow:
		return 0, true
	case remaining < g.cfg.ReduceBelow:
		return g.cfg.ReducedAssetCap, false
	default:
		return g.cfg.FullAssetCap, false
	}
}
