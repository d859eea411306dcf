package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/acquire"
	"github.com/JakeFAU/sitelens/internal/budget"
	"github.com/JakeFAU/sitelens/internal/progress"
	pubmem "github.com/JakeFAU/sitelens/internal/publisher/memory"
	"github.com/JakeFAU/sitelens/internal/scrape"
	"github.com/JakeFAU/sitelens/internal/storage/memory"
)

const richMarkup = `<html><head>
<title>Acme</title>
<meta name="description" content="Widgets">
<meta name="keywords" content="widgets, gadgets">
<link rel="icon" href="/favicon.png">
<script src="/static/app.js"></script>
</head><body style="color:#ff0000;background:#00ff00">
<h1>Welcome</h1>
<p style="color:#0000ff;border-color:#123456">A paragraph long enough to be kept in the content block.</p>
<a href="/about">About</a>
<a href="https://twitter.com/acme">Twitter</a>
</body></html>`

type acquireFunc func(ctx context.Context, req acquire.Request) (scrape.AcquisitionResult, error)

func (f acquireFunc) Acquire(ctx context.Context, req acquire.Request) (scrape.AcquisitionResult, error) {
	return f(ctx, req)
}

// fakeDownloader persists every URL except those listed in fail.
type fakeDownloader struct {
	mu    sync.Mutex
	calls [][]string
	fail  map[string]bool
}

func (d *fakeDownloader) Download(_ context.Context, jobID string, urls []string, _ string) []scrape.AssetRecord {
	d.mu.Lock()
	d.calls = append(d.calls, append([]string(nil), urls...))
	d.mu.Unlock()
	out := make([]scrape.AssetRecord, 0, len(urls))
	for i, u := range urls {
		rec := scrape.AssetRecord{SourceURL: u}
		if !d.fail[u] {
			rec.Key = fmt.Sprintf("%s/img_%d", jobID, i)
			rec.PersistedURL = "memory://" + rec.Key
			rec.ContentType = "image/png"
			rec.Bytes = 10
		}
		out = append(out, rec)
	}
	return out
}

func (d *fakeDownloader) Calls() [][]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([][]string(nil), d.calls...)
}

type recordingSink struct {
	mu      sync.Mutex
	entries []string
}

func (s *recordingSink) Append(_ string, message string, severity scrape.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, string(severity)+": "+message)
}

func (s *recordingSink) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.entries...)
}

type recordingEmitter struct {
	mu     sync.Mutex
	stages []progress.Stage
}

func (e *recordingEmitter) Emit(evt progress.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stages = append(e.stages, evt.Stage)
}

func (e *recordingEmitter) Stages() []progress.Stage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]progress.Stage(nil), e.stages...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// flakyJobStore wraps the memory store with injectable write failures.
type flakyJobStore struct {
	*memory.JobStore
	findingsErr error
	assetsErr   error
}

func (s *flakyJobStore) SaveFindings(ctx context.Context, f scrape.Findings) error {
	if s.findingsErr != nil {
		return s.findingsErr
	}
	return s.JobStore.SaveFindings(ctx, f)
}

func (s *flakyJobStore) SaveAssets(ctx context.Context, jobID string, assets []scrape.AssetRecord) error {
	if s.assetsErr != nil {
		return s.assetsErr
	}
	return s.JobStore.SaveAssets(ctx, jobID, assets)
}

type harness struct {
	jobs       *flakyJobStore
	blobs      *memory.BlobStore
	downloader *fakeDownloader
	logs       *recordingSink
	events     *recordingEmitter
	publisher  *pubmem.Publisher
	orch       *Orchestrator
}

func newHarness(t *testing.T, acq Acquirer, cfg Config, clock scrape.Clock) *harness {
	t.Helper()
	h := &harness{
		jobs:       &flakyJobStore{JobStore: memory.NewJobStore()},
		blobs:      memory.NewBlobStore(),
		downloader: &fakeDownloader{fail: map[string]bool{}},
		logs:       &recordingSink{},
		events:     &recordingEmitter{},
		publisher:  pubmem.New(),
	}
	if cfg.Topic == "" {
		cfg.Topic = "scrapes"
	}
	orch, err := New(Deps{
		Jobs:       h.jobs,
		Objects:    h.blobs,
		Acquirer:   acq,
		Downloader: h.downloader,
		Logs:       h.logs,
		Events:     h.events,
		Publisher:  h.publisher,
		Clock:      clock,
	}, cfg, zap.NewNop())
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) submit(t *testing.T, id, url string, mode scrape.Mode) scrape.QueueItem {
	t.Helper()
	require.NoError(t, h.jobs.CreateJob(context.Background(), scrape.Job{
		ID:     id,
		URL:    url,
		Mode:   mode,
		Status: scrape.JobStatusPending,
	}))
	return scrape.QueueItem{JobID: id, URL: url, Mode: mode}
}

func richAcquirer(images ...string) Acquirer {
	return acquireFunc(func(_ context.Context, req acquire.Request) (scrape.AcquisitionResult, error) {
		return scrape.AcquisitionResult{
			URL:          req.URL,
			Strategy:     "fast",
			Markup:       richMarkup,
			InlineCSS:    "@font-face{font-family:\"Brand Sans\";} body{font-family:Inter, sans-serif}",
			ImageURLs:    images,
			FontFamilies: []string{"Inter"},
			Stylesheets:  []string{"https://example.com/site.css"},
		}, nil
	})
}

func TestRunCompletesAndPersistsArtifact(t *testing.T) {
	t.Parallel()

	acq := richAcquirer("/img/a.png", "https://cdn.example.com/b.png", "data:image/png;base64,AAA", "/img/c.png")
	h := newHarness(t, acq, Config{}, nil)
	h.downloader.fail["https://cdn.example.com/b.png"] = true
	item := h.submit(t, "job-1", "https://example.com", scrape.ModeFast)

	out, err := h.orch.Run(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCompleted, out.Status)
	require.Equal(t, "memory://job-1/result.json", out.ArtifactURL)

	calls := h.downloader.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, []string{
		"https://example.com/img/a.png",
		"https://cdn.example.com/b.png",
		"https://example.com/img/c.png",
	}, calls[0])

	job, err := h.jobs.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, scrape.JobStatusCompleted, job.Status)
	assert.Equal(t, 2, job.TotalAssets)
	assert.Equal(t, out.ArtifactURL, job.ArtifactURL)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.CompletedAt)

	raw, err := h.blobs.Download(context.Background(), ArtifactKey("job-1"))
	require.NoError(t, err)
	require.Equal(t, "application/json", h.blobs.ContentType(ArtifactKey("job-1")))
	var stored scrape.Result
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, "Acme", stored.Metadata.Title)
	assert.Equal(t, "Widgets", stored.Metadata.Description)
	assert.Len(t, stored.Images, 2)
	assert.Equal(t, []scrape.URLRef{{URL: "https://example.com/site.css"}}, stored.CSSFiles)
	assert.Equal(t, []scrape.URLRef{{URL: "https://example.com/static/app.js"}}, stored.JSFiles)
	assert.Contains(t, stored.Links, "https://example.com/about")
	assert.Equal(t, 100, stored.DesignIntelligence.SEOReadiness)
	assert.Equal(t, CohesionUnified, stored.DesignIntelligence.VisualCohesion)
	assert.False(t, stored.AcquisitionFailed)

	findings, ok := h.jobs.Findings("job-1")
	require.True(t, ok)
	assert.Equal(t, stored.Colors, findings.Colors)
	assert.Len(t, h.jobs.Assets("job-1"), 3)

	msgs := h.publisher.ByTopic("scrapes")
	require.Len(t, msgs, 1)
	var payload map[string]any
	require.NoError(t, msgs[0].Decode(&payload))
	assert.Equal(t, "completed", payload["status"])

	entries := h.logs.Entries()
	require.NotEmpty(t, entries)
	assert.Equal(t, "success: Scrape completed successfully!", entries[len(entries)-1])
	assert.Contains(t, entries, "info: Downloaded 2 of 3 images")
	assert.Equal(t, []progress.Stage{
		progress.StageJobStart,
		progress.StageAcquisition,
		progress.StageAssets,
		progress.StageJobDone,
	}, h.events.Stages())
}

func TestRunAcquisitionFailureEndsFailedWithPlaceholderArtifact(t *testing.T) {
	t.Parallel()

	causes := []error{errors.New("fast: status 503"), scrape.ErrNoBrowserAvailable, errors.New("plain: status 503")}
	acq := acquireFunc(func(_ context.Context, req acquire.Request) (scrape.AcquisitionResult, error) {
		return acquire.Placeholder(req.URL), &scrape.AcquisitionError{URL: req.URL, Causes: causes}
	})
	h := newHarness(t, acq, Config{}, nil)
	item := h.submit(t, "job-2", "https://down.example.com", scrape.ModeAuto)

	out, err := h.orch.Run(context.Background(), item)
	var acqErr *scrape.AcquisitionError
	require.ErrorAs(t, err, &acqErr)
	require.ErrorIs(t, err, scrape.ErrNoBrowserAvailable)
	require.Equal(t, scrape.JobStatusFailed, out.Status)
	require.Empty(t, h.downloader.Calls())

	job, err := h.jobs.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, scrape.JobStatusFailed, job.Status)
	assert.NotEmpty(t, job.ErrorText)
	assert.Equal(t, "memory://job-2/result.json", job.ArtifactURL)

	raw, err := h.blobs.Download(context.Background(), ArtifactKey("job-2"))
	require.NoError(t, err)
	var stored scrape.Result
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.True(t, stored.AcquisitionFailed)

	entries := h.logs.Entries()
	assert.True(t, strings.HasPrefix(entries[len(entries)-1], "error: Scrape failed: "))
	stages := h.events.Stages()
	assert.Equal(t, progress.StageJobError, stages[len(stages)-1])
	last, ok := h.publisher.Last()
	require.True(t, ok)
	var payload map[string]any
	require.NoError(t, last.Decode(&payload))
	assert.Equal(t, "failed", payload["status"])
}

func TestRunFindingsFailureIsFatal(t *testing.T) {
	t.Parallel()

	h := newHarness(t, richAcquirer(), Config{}, nil)
	h.jobs.findingsErr = errors.New("connection reset")
	item := h.submit(t, "job-3", "https://example.com", scrape.ModeFast)

	out, err := h.orch.Run(context.Background(), item)
	var perr *scrape.PersistenceError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "save findings", perr.Op)
	require.Equal(t, scrape.JobStatusFailed, out.Status)

	job, err := h.jobs.GetJob(context.Background(), "job-3")
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusFailed, job.Status)
	require.Contains(t, job.ErrorText, "connection reset")
}

func TestRunAssetRecordFailureIsOnlyAWarning(t *testing.T) {
	t.Parallel()

	h := newHarness(t, richAcquirer("https://example.com/a.png"), Config{}, nil)
	h.jobs.assetsErr = errors.New("disk full")
	item := h.submit(t, "job-4", "https://example.com", scrape.ModeFast)

	out, err := h.orch.Run(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCompleted, out.Status)
	require.Contains(t, h.logs.Entries(), "warning: Could not record downloaded images: disk full")
}

func TestRunFinishesWhenDeepOverrunsBudget(t *testing.T) {
	t.Parallel()

	acq := acquireFunc(func(ctx context.Context, req acquire.Request) (scrape.AcquisitionResult, error) {
		// Simulates a navigation that never settles; whatever was gathered
		// before the deadline comes back as a partial result.
		<-ctx.Done()
		return scrape.AcquisitionResult{
			URL:       req.URL,
			Strategy:  "deep",
			Markup:    "<html><head><title>Half</title></head><body></body></html>",
			ImageURLs: []string{"https://example.com/hero.png"},
			Partial:   true,
		}, nil
	})
	cfg := Config{
		Budget:       budget.Config{Ceiling: 100 * time.Millisecond},
		AcquireGrace: 50 * time.Millisecond,
	}
	h := newHarness(t, acq, cfg, nil)
	item := h.submit(t, "job-5", "https://example.com", scrape.ModeDeep)

	done := make(chan struct{})
	var out Outcome
	var err error
	go func() {
		defer close(done)
		out, err = h.orch.Run(context.Background(), item)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after the time budget expired")
	}

	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCompleted, out.Status)
	require.Empty(t, h.downloader.Calls(), "downloads must be skipped once the budget is spent")
	require.Equal(t, "Half", out.Result.Metadata.Title)
	require.Equal(t, []scrape.URLRef{{URL: "https://example.com/hero.png"}}, out.Result.Images)
	require.Contains(t, h.logs.Entries(), "warning: Time budget reached, continuing with partial findings")
	require.Contains(t, h.logs.Entries(), "warning: Skipping image downloads, time budget nearly spent")
}

func TestRunReducesAssetCapWhenBudgetIsLow(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	images := make([]string, 0, 30)
	for i := range 30 {
		images = append(images, fmt.Sprintf("https://example.com/%d.png", i))
	}
	inner := richAcquirer(images...)
	acq := acquireFunc(func(ctx context.Context, req acquire.Request) (scrape.AcquisitionResult, error) {
		clock.Advance(40 * time.Second)
		return inner.Acquire(ctx, req)
	})
	h := newHarness(t, acq, Config{}, clock)
	item := h.submit(t, "job-6", "https://example.com", scrape.ModeFast)

	_, err := h.orch.Run(context.Background(), item)
	require.NoError(t, err)

	calls := h.downloader.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0], 20)
	require.Equal(t, images[:20], calls[0])
}

func TestRunCapsImagesWhenDownloadsAreSkipped(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	images := make([]string, 0, 150)
	for i := range 150 {
		images = append(images, fmt.Sprintf("https://example.com/%d.png", i))
	}
	inner := richAcquirer(images...)
	acq := acquireFunc(func(ctx context.Context, req acquire.Request) (scrape.AcquisitionResult, error) {
		clock.Advance(52 * time.Second)
		return inner.Acquire(ctx, req)
	})
	h := newHarness(t, acq, Config{}, clock)
	item := h.submit(t, "job-7", "https://example.com", scrape.ModeFast)

	out, err := h.orch.Run(context.Background(), item)
	require.NoError(t, err)
	require.Equal(t, scrape.JobStatusCompleted, out.Status)
	require.Empty(t, h.downloader.Calls())
	require.Len(t, out.Result.Images, 100)
	assert.Equal(t, images[0], out.Result.Images[0].URL)
	assert.Equal(t, images[99], out.Result.Images[99].URL)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{Jobs: memory.NewJobStore()}, Config{}, nil)
	require.Error(t, err)
}
