// Package worker implements the scrape execution loop.
package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/pipeline"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Runner executes one job. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, item scrape.QueueItem) (pipeline.Outcome, error)
}

// Worker consumes queue items and hands each to the Runner.
type Worker struct {
	queue  scrape.Queue
	runner Runner
	logger *zap.Logger
}

// New constructs a Worker.
func New(queue scrape.Queue, runner Runner, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{queue: queue, runner: runner, logger: logger}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, scrape.ErrQueueClosed) {
				w.logger.Debug("queue closed, worker exiting")
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item scrape.QueueItem) {
	if w.runner == nil {
		w.logger.Error("no runner configured", zap.String("job_id", item.JobID))
		return
	}
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	// A job that started keeps running through shutdown; its time budget bounds it.
	out, err := w.runner.Run(context.WithoutCancel(ctx), item)
	if err != nil {
		var perr *scrape.PersistenceError
		if errors.As(err, &perr) {
			w.logger.Error("job persistence failed", zap.String("job_id", item.JobID), zap.Error(err))
			return
		}
		w.logger.Warn("job failed",
			zap.String("job_id", item.JobID),
			zap.String("status", string(out.Status)),
			zap.Error(err),
		)
		return
	}
	w.logger.Debug("job processed",
		zap.String("job_id", item.JobID),
		zap.String("status", string(out.Status)),
		zap.String("artifact_url", out.ArtifactURL),
	)
}
