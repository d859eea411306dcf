// Package dispatcher owns the worker pool and is the submission point for queued jobs.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/sitelens/internal/scrape"
	"github.com/JakeFAU/sitelens/internal/worker"
)

// ErrAlreadyRunning is returned when Run is called on a running Dispatcher.
var ErrAlreadyRunning = errors.New("dispatcher already running")

// Dispatcher fans queued jobs out to a fixed pool of workers.
type Dispatcher struct {
	queue   scrape.Queue
	workers []*worker.Worker
	logger  *zap.Logger
	running atomic.Bool
}

// New creates a Dispatcher.
func New(queue scrape.Queue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:   queue,
		workers: workers,
		logger:  logger,
	}
}

// Run starts every worker and blocks until all of them have returned. Workers
// stop taking new jobs once ctx ends or the queue closes, but finish the job
// they are on.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer d.running.Store(false)

	var g errgroup.Group
	for _, w := range d.workers {
		g.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
	err := g.Wait()
	d.logger.Info("workers drained", zap.Int("workers", len(d.workers)))
	if err != nil {
		return fmt.Errorf("run workers: %w", err)
	}
	return nil
}

// Enqueue validates item and hands it to the queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item scrape.QueueItem) error {
	if item.JobID == "" {
		return errors.New("queue enqueue: job id is required")
	}
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
