package acquire

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/budget"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

type fakeStrategy struct {
	name   string
	result scrape.AcquisitionResult
	err    error
	calls  int
	run    func(ctx context.Context) (scrape.AcquisitionResult, error)
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Acquire(ctx context.Context, _ Request) (scrape.AcquisitionResult, error) {
	f.calls++
	if f.run != nil {
		return f.run(ctx)
	}
	return f.result, f.err
}

type recordingSink struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingSink) Append(_ string, message string, _ scrape.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, message)
}

type fixedDetector bool

func (d fixedDetector) ShouldPromote(scrape.AcquisitionResult) bool { return bool(d) }

func okStrategy(name string, images ...string) *fakeStrategy {
	return &fakeStrategy{name: name, result: scrape.AcquisitionResult{
		Strategy:  name,
		Markup:    "<html><body>" + name + "</body></html>",
		ImageURLs: images,
	}}
}

func failingStrategy(name string) *fakeStrategy {
	return &fakeStrategy{name: name, err: errors.New(name + " broke")}
}

func TestSelectorFastModePrefersFast(t *testing.T) {
	t.Parallel()

	fast, deep := okStrategy("fast"), okStrategy("deep")
	sel := NewSelector(fast, deep, failingStrategy("plain"), nil, SelectorConfig{}, nil)

	res, err := sel.Acquire(context.Background(), Request{URL: "https://example.com", Mode: scrape.ModeFast})
	require.NoError(t, err)
	require.Equal(t, "fast", res.Strategy)
	require.Zero(t, deep.calls)
}

func TestSelectorFallsBackToDeep(t *testing.T) {
	t.Parallel()

	deep := okStrategy("deep")
	sel := NewSelector(failingStrategy("fast"), deep, failingStrategy("plain"), nil, SelectorConfig{}, nil)

	res, err := sel.Acquire(context.Background(), Request{URL: "https://example.com", Mode: scrape.ModeFast})
	require.NoError(t, err)
	require.Equal(t, "deep", res.Strategy)
	require.Equal(t, 1, deep.calls)
}

func TestSelectorDeepModeFallsBackToFast(t *testing.T) {
	t.Parallel()

	fast := okStrategy("fast")
	sel := NewSelector(fast, failingStrategy("deep"), nil, nil, SelectorConfig{}, nil)

	res, err := sel.Acquire(context.Background(), Request{URL: "https://example.com", Mode: scrape.ModeDeep})
	require.NoError(t, err)
	require.Equal(t, "fast", res.Strategy)
}

func TestSelectorPlainFallback(t *testing.T) {
	t.Parallel()

	sel := NewSelector(failingStrategy("fast"), nil, okStrategy("plain"), nil, SelectorConfig{}, nil)

	res, err := sel.Acquire(context.Background(), Request{URL: "https://example.com"})
	require.NoError(t, err)
	require.Equal(t, "plain", res.Strategy)
}

func TestSelectorPlaceholderOnTotalFailure(t *testing.T) {
	t.Parallel()

	logs := &recordingSink{}
	sel := NewSelector(failingStrategy("fast"), failingStrategy("deep"), failingStrategy("plain"), nil, SelectorConfig{}, nil)

	res, err := sel.Acquire(context.Background(), Request{JobID: "j", URL: "https://example.com", Logs: logs})
	require.True(t, res.Placeholder)
	require.NotEmpty(t, res.Markup)

	var acqErr *scrape.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	require.Len(t, acqErr.Causes, 3)
	require.Contains(t, logs.entries, "Attempting fast scrape...")
}

func TestSelectorWithoutBrowserReportsNoBrowser(t *testing.T) {
	t.Parallel()

	sel := NewSelector(failingStrategy("fast"), nil, failingStrategy("plain"), nil, SelectorConfig{}, nil)

	_, err := sel.Acquire(context.Background(), Request{URL: "https://example.com"})
	require.ErrorIs(t, err, scrape.ErrNoBrowserAvailable)
}

func TestSelectorAutoPromotesAndMerges(t *testing.T) {
	t.Parallel()

	fast := okStrategy("fast", "https://example.com/a.png", "https://example.com/b.png")
	deep := okStrategy("deep", "https://example.com/b.png", "https://example.com/c.png")
	sel := NewSelector(fast, deep, nil, fixedDetector(true), SelectorConfig{}, nil)

	res, err := sel.Acquire(context.Background(), Request{URL: "https://example.com", Mode: scrape.ModeAuto})
	require.NoError(t, err)
	require.Equal(t, "deep", res.Strategy)
	require.Equal(t, []string{
		"https://example.com/b.png",
		"https://example.com/c.png",
		"https://example.com/a.png",
	}, res.ImageURLs)
}

func TestSelectorAutoKeepsFastWhenNotPromoted(t *testing.T) {
	t.Parallel()

	deep := okStrategy("deep")
	sel := NewSelector(okStrategy("fast"), deep, nil, fixedDetector(false), SelectorConfig{}, nil)

	res, err := sel.Acquire(context.Background(), Request{URL: "https://example.com", Mode: scrape.ModeAuto})
	require.NoError(t, err)
	require.Equal(t, "fast", res.Strategy)
	require.Zero(t, deep.calls)
}

func TestSelectorAutoKeepsFastWhenDeepFails(t *testing.T) {
	t.Parallel()

	sel := NewSelector(okStrategy("fast"), failingStrategy("deep"), nil, fixedDetector(true), SelectorConfig{}, nil)

	res, err := sel.Acquire(context.Background(), Request{URL: "https://example.com", Mode: scrape.ModeAuto})
	require.NoError(t, err)
	require.Equal(t, "fast", res.Strategy)
}

func TestSelectorSkipsDeepWhenBudgetLow(t *testing.T) {
	t.Parallel()

	deep := okStrategy("deep")
	gov := budget.Start(budget.Config{Ceiling: time.Second}, nil)
	sel := NewSelector(failingStrategy("fast"), deep, nil, nil, SelectorConfig{MinDeepBudget: 5 * time.Second}, nil)

	res, err := sel.Acquire(context.Background(), Request{URL: "https://example.com", Governor: gov})
	require.ErrorIs(t, err, scrape.ErrTimeBudgetExceeded)
	require.True(t, res.Placeholder)
	require.Zero(t, deep.calls)
}

func TestSelectorBoundsHangingDeep(t *testing.T) {
	t.Parallel()

	deep := &fakeStrategy{name: "deep", run: func(ctx context.Context) (scrape.AcquisitionResult, error) {
		<-ctx.Done()
		return scrape.AcquisitionResult{}, ctx.Err()
	}}
	gov := budget.Start(budget.Config{Ceiling: 200 * time.Millisecond}, nil)
	sel := NewSelector(failingStrategy("fast"), deep, nil, nil,
		SelectorConfig{MinDeepBudget: time.Millisecond, DeepGrace: 50 * time.Millisecond}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sel.Acquire(context.Background(), Request{URL: "https://example.com", Governor: gov})
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("selector did not return after the time budget")
	}
}
