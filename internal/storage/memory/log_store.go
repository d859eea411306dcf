package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// LogStore keeps job log entries in append order.
type LogStore struct {
	mu      sync.RWMutex
	entries map[string][]scrape.LogEntry
}

// NewLogStore constructs a LogStore.
func NewLogStore() *LogStore {
	return &LogStore{entries: make(map[string][]scrape.LogEntry)}
}

// AppendLogs appends entries, keeping their order.
func (s *LogStore) AppendLogs(_ context.Context, entries []scrape.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		s.entries[e.JobID] = append(s.entries[e.JobID], e)
	}
	return nil
}

// ListLogs returns a copy of a job's entries. Unknown jobs yield an empty list.
func (s *LogStore) ListLogs(_ context.Context, jobID string) ([]scrape.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.LogEntry, len(s.entries[jobID]))
	copy(out, s.entries[jobID])
	return out, nil
}
