// Package pipeline runs one scrape job end to end: acquisition, extraction,
// asset materialization, scoring and persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/acquire"
	"github.com/JakeFAU/sitelens/internal/budget"
	"github.com/JakeFAU/sitelens/internal/clock/system"
	"github.com/JakeFAU/sitelens/internal/extract"
	"github.com/JakeFAU/sitelens/internal/logging"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/progress"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Acquirer produces the markup bundle for a run. *acquire.Selector satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context, req acquire.Request) (scrape.AcquisitionResult, error)
}

// AssetDownloader materializes image candidates. *download.Downloader satisfies it.
type AssetDownloader interface {
	Download(ctx context.Context, jobID string, urls []string, referer string) []scrape.AssetRecord
}

// Config tunes the orchestrator.
type Config struct {
	Budget budget.Config
	// AcquireGrace extends the acquisition context past the budget so a
	// truncated Deep pass can still hand back what it gathered.
	AcquireGrace time.Duration
	// FinalizeTimeout bounds terminal writes made after the run context ended.
	FinalizeTimeout time.Duration
	// Topic is the completion topic; empty disables publishing.
	Topic string
}

// Deps are the collaborators of an Orchestrator. Jobs, Objects and Acquirer
// are required.
type Deps struct {
	Jobs       scrape.JobStore
	Objects    scrape.ObjectStore
	Acquirer   Acquirer
	Downloader AssetDownloader
	Logs       scrape.LogSink
	Events     progress.Emitter
	Publisher  scrape.Publisher
	Clock      scrape.Clock
}

// Orchestrator drives the pending → scraping → completed|failed state machine.
// It is safe for concurrent use by multiple workers.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

type discardLogs struct{}

func (discardLogs) Append(string, string, scrape.Severity) {}

// New validates deps and returns an Orchestrator.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Jobs == nil || deps.Objects == nil || deps.Acquirer == nil {
		return nil, errors.New("pipeline: job store, object store and acquirer are required")
	}
	if deps.Logs == nil {
		deps.Logs = discardLogs{}
	}
	deps.Clock = system.Or(deps.Clock)
	if cfg.AcquireGrace <= 0 {
		cfg.AcquireGrace = 5 * time.Second
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger}, nil
}

// Outcome summarizes a finished run.
type Outcome struct {
	Status      scrape.JobStatus
	Result      scrape.Result
	ArtifactURL string
	Assets      []scrape.AssetRecord
}

// run carries the state of a single job through the stages.
type run struct {
	item    scrape.QueueItem
	gov     *budget.Governor
	started time.Time
}

// Run executes one job. The returned error is nil only when the job reached
// completed; it is a *scrape.AcquisitionError when no markup could be obtained
// and a *scrape.PersistenceError when the structured record could not be stored.
func (o *Orchestrator) Run(ctx context.Context, item scrape.QueueItem) (Outcome, error) {
	if !item.Mode.Valid() {
		item.Mode = scrape.ModeFast
	}
	r := &run{
		item:    item,
		gov:     budget.Start(o.cfg.Budget, o.deps.Clock),
		started: o.deps.Clock.Now(),
	}
	logger := logging.ForJob(o.logger, item.JobID, item.URL)

	if err := o.deps.Jobs.UpdateStatus(ctx, item.JobID, scrape.JobStatusScraping, scrape.JobFields{At: r.started}); err != nil {
		perr := &scrape.PersistenceError{Op: "mark scraping", Err: err}
		logger.Error("job could not be started", zap.Error(perr))
		return Outcome{Status: scrape.JobStatusFailed}, perr
	}
	o.emit(progress.Event{JobID: item.JobID, Stage: progress.StageJobStart})
	o.log(item.JobID, scrape.SeverityInfo, "Starting %s scrape of %s", item.Mode, item.URL)

	acq, acqErr := o.acquire(ctx, r)

	doc, err := extract.Document(acq)
	if err != nil {
		return o.fail(ctx, r, Outcome{}, fmt.Errorf("extract: %w", err))
	}
	o.log(item.JobID, scrape.SeverityInfo, "Found %d colors, %d fonts and %d technologies",
		len(doc.Colors), len(doc.Fonts), len(doc.Technologies))

	candidates := imageCandidates(acq)
	if limit := r.gov.CandidateCap(); len(candidates) > limit {
		candidates = candidates[:limit]
	}
	assets := o.materialize(ctx, r, candidates)
	persisted := 0
	for _, rec := range assets {
		if rec.Succeeded() {
			persisted++
		}
	}

	scores := Score(doc, acq.URL, acq.Markup)
	result := BuildResult(acq, doc, assets, candidates, scores)
	out := Outcome{Result: result, Assets: assets}

	artifactURL, err := o.storeArtifact(ctx, item.JobID, result)
	if err != nil {
		return o.fail(ctx, r, out, err)
	}
	out.ArtifactURL = artifactURL

	findings := scrape.Findings{
		JobID:        item.JobID,
		URL:          item.URL,
		Metadata:     result.Metadata,
		Colors:       result.Colors,
		Fonts:        result.Fonts,
		Technologies: result.Technologies,
		Scores:       scores,
		RecordedAt:   o.deps.Clock.Now(),
	}
	if err := o.deps.Jobs.SaveFindings(ctx, findings); err != nil {
		return o.fail(ctx, r, out, &scrape.PersistenceError{Op: "save findings", Err: err})
	}

	if acqErr != nil {
		return o.fail(ctx, r, out, acqErr)
	}

	fields := scrape.JobFields{At: o.deps.Clock.Now(), TotalAssets: persisted, ArtifactURL: artifactURL}
	if err := o.finalize(ctx, r, scrape.JobStatusCompleted, fields); err != nil {
		return o.fail(ctx, r, out, err)
	}
	out.Status = scrape.JobStatusCompleted
	o.log(item.JobID, scrape.SeveritySuccess, "Scrape completed successfully!")
	o.emit(progress.Event{JobID: item.JobID, Stage: progress.StageJobDone, Dur: r.gov.Elapsed()})
	o.publish(ctx, r, out)
	logger.Info("scrape completed",
		zap.String("strategy", acq.Strategy),
		zap.Bool("partial", acq.Partial),
		zap.Int("assets", persisted),
		zap.Duration("elapsed", r.gov.Elapsed()),
	)
	return out, nil
}

// acquire runs the selector under a context that outlives the budget only by
// the configured grace.
func (o *Orchestrator) acquire(ctx context.Context, r *run) (scrape.AcquisitionResult, error) {
	acqCtx, cancel := context.WithTimeout(ctx, r.gov.Remaining()+o.cfg.AcquireGrace)
	defer cancel()

	begin := o.deps.Clock.Now()
	acq, err := o.deps.Acquirer.Acquire(acqCtx, acquire.Request{
		JobID:    r.item.JobID,
		URL:      r.item.URL,
		Mode:     r.item.Mode,
		Governor: r.gov,
		Logs:     o.deps.Logs,
	})
	if acq.URL == "" {
		acq.URL = r.item.URL
	}
	if acq.Markup == "" && err == nil {
		err = &scrape.AcquisitionError{URL: r.item.URL, Causes: []error{errors.New("empty markup")}}
		acq = acquire.Placeholder(r.item.URL)
	}
	if acq.Strategy == "" {
		acq.Strategy = "unknown"
	}

	o.emit(progress.Event{
		JobID:    r.item.JobID,
		Stage:    progress.StageAcquisition,
		Strategy: acq.Strategy,
		Partial:  acq.Partial,
		Dur:      o.deps.Clock.Now().Sub(begin),
	})
	if acq.Partial {
		metrics.ObserveBudgetTrip("acquisition")
		o.log(r.item.JobID, scrape.SeverityWarning, "Time budget reached, continuing with partial findings")
	}
	if err == nil {
		o.log(r.item.JobID, scrape.SeverityInfo, "Page acquired with %s strategy", acq.Strategy)
	}
	return acq, err
}

// materialize downloads the capped candidate list. A nil return means the
// phase did not run.
func (o *Orchestrator) materialize(ctx context.Context, r *run, candidates []string) []scrape.AssetRecord {
	if o.deps.Downloader == nil || len(candidates) == 0 {
		return nil
	}
	limit, skip := r.gov.AssetPlan()
	if skip {
		metrics.ObserveBudgetTrip("assets")
		o.log(r.item.JobID, scrape.SeverityWarning, "Skipping image downloads, time budget nearly spent")
		return nil
	}
	if len(candidates) > limit {
		o.log(r.item.JobID, scrape.SeverityInfo, "Limiting image downloads to %d of %d candidates", limit, len(candidates))
		candidates = candidates[:limit]
	}
	o.log(r.item.JobID, scrape.SeverityInfo, "Downloading %d images...", len(candidates))

	dlCtx, cancel := r.gov.WithDeadline(ctx)
	defer cancel()
	begin := o.deps.Clock.Now()
	assets := o.deps.Downloader.Download(dlCtx, r.item.JobID, candidates, r.item.URL)

	persisted := 0
	for _, rec := range assets {
		if rec.Succeeded() {
			persisted++
		}
	}
	o.emit(progress.Event{
		JobID:     r.item.JobID,
		Stage:     progress.StageAssets,
		Attempted: len(assets),
		Persisted: persisted,
		Dur:       o.deps.Clock.Now().Sub(begin),
	})
	o.log(r.item.JobID, scrape.SeverityInfo, "Downloaded %d of %d images", persisted, len(assets))

	if err := o.deps.Jobs.SaveAssets(ctx, r.item.JobID, assets); err != nil {
		o.log(r.item.JobID, scrape.SeverityWarning, "Could not record downloaded images: %v", err)
		o.logger.Warn("save assets failed", zap.String("job_id", r.item.JobID), zap.Error(err))
	}
	return assets
}

func (o *Orchestrator) storeArtifact(ctx context.Context, jobID string, result scrape.Result) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	uploadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FinalizeTimeout)
	defer cancel()
	artifactURL, err := o.deps.Objects.Upload(uploadCtx, ArtifactKey(jobID), payload, "application/json")
	if err != nil {
		return "", &scrape.PersistenceError{Op: "upload result", Err: err}
	}
	return artifactURL, nil
}

// finalize writes the terminal status even when ctx has already ended.
func (o *Orchestrator) finalize(ctx context.Context, r *run, status scrape.JobStatus, fields scrape.JobFields) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FinalizeTimeout)
	defer cancel()
	if err := o.deps.Jobs.UpdateStatus(writeCtx, r.item.JobID, status, fields); err != nil {
		return &scrape.PersistenceError{Op: "mark " + string(status), Err: err}
	}
	return nil
}

// fail moves the job to failed and reports cause to the caller.
func (o *Orchestrator) fail(ctx context.Context, r *run, out Outcome, cause error) (Outcome, error) {
	fields := scrape.JobFields{
		At:          o.deps.Clock.Now(),
		ErrorText:   cause.Error(),
		ArtifactURL: out.ArtifactURL,
	}
	for _, rec := range out.Assets {
		if rec.Succeeded() {
			fields.TotalAssets++
		}
	}
	if err := o.finalize(ctx, r, scrape.JobStatusFailed, fields); err != nil {
		o.logger.Error("failed job status update",
			zap.String("job_id", r.item.JobID),
			zap.Error(err),
		)
	}
	out.Status = scrape.JobStatusFailed
	o.log(r.item.JobID, scrape.SeverityError, "Scrape failed: %v", cause)
	o.emit(progress.Event{JobID: r.item.JobID, Stage: progress.StageJobError, Dur: r.gov.Elapsed()})
	o.publish(ctx, r, out)
	o.logger.Warn("scrape failed",
		zap.String("job_id", r.item.JobID),
		zap.String("url", r.item.URL),
		zap.Error(cause),
	)
	return out, cause
}

func (o *Orchestrator) publish(ctx context.Context, r *run, out Outcome) {
	if o.cfg.Topic == "" || o.deps.Publisher == nil {
		return
	}
	payload := map[string]any{
		"job_id":       r.item.JobID,
		"url":          r.item.URL,
		"status":       string(out.Status),
		"artifact_url": out.ArtifactURL,
		"timestamp":    o.deps.Clock.Now().Format(time.RFC3339),
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.FinalizeTimeout)
	defer cancel()
	if _, err := o.deps.Publisher.Publish(pubCtx, o.cfg.Topic, payload); err != nil {
		o.logger.Warn("publish completion failed", zap.String("job_id", r.item.JobID), zap.Error(err))
	}
}

func (o *Orchestrator) log(jobID string, severity scrape.Severity, format string, args ...any) {
	o.deps.Logs.Append(jobID, fmt.Sprintf(format, args...), severity)
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.deps.Events != nil {
		o.deps.Events.Emit(evt)
	}
}

// imageCandidates returns the absolute http(s) image URLs of acq in discovery order.
func imageCandidates(acq scrape.AcquisitionResult) []string {
	if acq.Placeholder {
		return nil
	}
	urls := make([]string, 0, len(acq.ImageURLs))
	for _, raw := range acq.ImageURLs {
		abs := extract.Resolve(acq.URL, raw)
		lower := strings.ToLower(abs)
		if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			urls = append(urls, abs)
		}
	}
	return extract.Unique(urls)
}
