// Package memory is the in-process job queue that feeds the worker pool.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// DefaultCapacity is used when NewQueue is given a non-positive capacity.
const DefaultCapacity = 100

// Queue is a bounded FIFO of scrape jobs. Enqueue blocks while the queue is
// full until ctx ends. Closing the queue lets workers drain what is left.
type Queue struct {
	items chan scrape.QueueItem

	mu     sync.RWMutex
	closed bool
}

// NewQueue returns a Queue holding up to capacity jobs.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{items: make(chan scrape.QueueItem, capacity)}
}

// Enqueue adds item to the back of the queue.
func (q *Queue) Enqueue(ctx context.Context, item scrape.QueueItem) error {
	// The read lock keeps Close from closing the channel under a pending send.
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return scrape.ErrQueueClosed
	}
	select {
	case q.items <- item:
		metrics.SetQueueDepth(len(q.items))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", item.JobID, ctx.Err())
	}
}

// Dequeue removes the job at the front of the queue, waiting for one to
// arrive. Once the queue is closed and empty it returns scrape.ErrQueueClosed.
func (q *Queue) Dequeue(ctx context.Context) (scrape.QueueItem, error) {
	select {
	case item, ok := <-q.items:
		if !ok {
			return scrape.QueueItem{}, scrape.ErrQueueClosed
		}
		metrics.SetQueueDepth(len(q.items))
		return item, nil
	case <-ctx.Done():
		return scrape.QueueItem{}, fmt.Errorf("dequeue: %w", ctx.Err())
	}
}

// Len is the number of waiting jobs.
func (q *Queue) Len() int { return len(q.items) }

// Cap is the queue's capacity.
func (q *Queue) Cap() int { return cap(q.items) }

// Close stops new submissions. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.items)
	}
}
