package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// JobStore provides an in-memory implementation for development/testing.
type JobStore struct {
	mu       sync.RWMutex
	jobs     map[string]scrape.Job
	findings map[string]scrape.Findings
	assets   map[string][]scrape.AssetRecord
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs:     make(map[string]scrape.Job),
		findings: make(map[string]scrape.Findings),
		assets:   make(map[string][]scrape.AssetRecord),
	}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job scrape.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// UpdateStatus moves a job to status and records the accompanying fields.
// Terminal jobs cannot be updated again.
func (s *JobStore) UpdateStatus(_ context.Context, jobID string, status scrape.JobStatus, fields scrape.JobFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s already %s", jobID, job.Status)
	}
	at := fields.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	job.Status = status
	switch {
	case status == scrape.JobStatusScraping && job.StartedAt == nil:
		job.StartedAt = pointerTime(at)
	case status.Terminal():
		job.CompletedAt = pointerTime(at)
		job.TotalAssets = fields.TotalAssets
		job.ErrorText = fields.ErrorText
		job.ArtifactURL = fields.ArtifactURL
	}
	s.jobs[jobID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (scrape.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return scrape.Job{}, fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
	}
	return job, nil
}

// SaveFindings stores the structured record for a job, replacing any previous one.
func (s *JobStore) SaveFindings(_ context.Context, findings scrape.Findings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[findings.JobID]; !ok {
		return fmt.Errorf("job %s: %w", findings.JobID, scrape.ErrNotFound)
	}
	s.findings[findings.JobID] = findings
	return nil
}

// SaveAssets appends asset rows for a job.
func (s *JobStore) SaveAssets(_ context.Context, jobID string, assets []scrape.AssetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assets[jobID] = append(s.assets[jobID], assets...)
	return nil
}

// Findings returns the stored findings for a job.
func (s *JobStore) Findings(jobID string) (scrape.Findings, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.findings[jobID]
	return f, ok
}

// Assets returns a copy of the asset rows recorded for a job.
func (s *JobStore) Assets(jobID string) []scrape.AssetRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]scrape.AssetRecord, len(s.assets[jobID]))
	copy(out, s.assets[jobID])
	return out
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
