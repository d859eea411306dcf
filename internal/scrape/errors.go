package scrape

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned by stores when a record or object does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoBrowserAvailable means no controllable browser session could be obtained.
	ErrNoBrowserAvailable = errors.New("no browser available")
	// ErrNavigationTimeout marks a navigation that did not settle in time. It is never fatal.
	ErrNavigationTimeout = errors.New("navigation timeout")
	// ErrTimeBudgetExceeded is signalled once the run's wall-clock ceiling has passed.
	ErrTimeBudgetExceeded = errors.New("time budget exceeded")
	// ErrQueueClosed is returned by queues that were shut down.
	ErrQueueClosed = errors.New("queue closed")
)

// AcquisitionError reports that no strategy, including the plain-fetch
// fallback, produced markup for URL.
type AcquisitionError struct {
	URL    string
	Causes []error
}

func (e *AcquisitionError) Error() string {
	parts := make([]string, 0, len(e.Causes))
	for _, cause := range e.Causes {
		parts = append(parts, cause.Error())
	}
	return fmt.Sprintf("acquire %s: %s", e.URL, strings.Join(parts, "; "))
}

// Unwrap exposes the individual strategy failures to errors.Is / errors.As.
func (e *AcquisitionError) Unwrap() []error {
	return e.Causes
}

// PersistenceError wraps a failed write of the structured record. It aborts a run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
