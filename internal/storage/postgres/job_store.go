package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// JobStore persists jobs, findings and asset rows.
type JobStore struct {
	db DB
}

// NewJobStore wraps an open pool.
func NewJobStore(db DB) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{db: db}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job scrape.Job) error {
	const query = `
INSERT INTO scrape_jobs (id, url, mode, status, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.Exec(ctx, query, job.ID, job.URL, string(job.Mode), string(job.Status), job.CreatedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateStatus transitions a non-terminal job.
func (s *JobStore) UpdateStatus(ctx context.Context, jobID string, status scrape.JobStatus, fields scrape.JobFields) error {
	at := fields.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	var (
		query string
		args  []any
	)
	if status.Terminal() {
		query = `
UPDATE scrape_jobs
SET status = $2, completed_at = $3, total_assets = $4, error_text = $5, artifact_url = $6
WHERE id = $1 AND status NOT IN ('completed', 'failed')`
		args = []any{jobID, string(status), at, fields.TotalAssets, fields.ErrorText, fields.ArtifactURL}
	} else {
		query = `
UPDATE scrape_jobs
SET status = $2, started_at = COALESCE(started_at, $3)
WHERE id = $1 AND status NOT IN ('completed', 'failed')`
		args = []any{jobID, string(status), at}
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s missing or already terminal: %w", jobID, scrape.ErrNotFound)
	}
	return nil
}

// GetJob loads a job by ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (scrape.Job, error) {
	const query = `
SELECT id, url, mode, status, created_at, started_at, completed_at, total_assets, error_text, artifact_url
FROM scrape_jobs
WHERE id = $1`
	var (
		job          scrape.Job
		mode, status string
	)
	err := s.db.QueryRow(ctx, query, jobID).Scan(
		&job.ID,
		&job.URL,
		&mode,
		&status,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.TotalAssets,
		&job.ErrorText,
		&job.ArtifactURL,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Job{}, fmt.Errorf("job %s: %w", jobID, scrape.ErrNotFound)
	}
	if err != nil {
		return scrape.Job{}, fmt.Errorf("get job: %w", err)
	}
	job.Mode = scrape.Mode(mode)
	job.Status = scrape.JobStatus(status)
	return job, nil
}

// SaveFindings upserts the structured record for a job.
func (s *JobStore) SaveFindings(ctx context.Context, f scrape.Findings) error {
	const query = `
INSERT INTO scrape_findings (job_id, url, metadata, colors, fonts, technologies, scores, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (job_id) DO UPDATE SET
	url = EXCLUDED.url,
	metadata = EXCLUDED.metadata,
	colors = EXCLUDED.colors,
	fonts = EXCLUDED.fonts,
	technologies = EXCLUDED.technologies,
	scores = EXCLUDED.scores,
	recorded_at = EXCLUDED.recorded_at`
	payloads := make([][]byte, 0, 5)
	for _, v := range []any{f.Metadata, f.Colors, f.Fonts, f.Technologies, f.Scores} {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal findings: %w", err)
		}
		payloads = append(payloads, raw)
	}
	_, err := s.db.Exec(ctx, query,
		f.JobID,
		f.URL,
		payloads[0],
		payloads[1],
		payloads[2],
		payloads[3],
		payloads[4],
		f.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert findings: %w", err)
	}
	return nil
}

// SaveAssets inserts the successful asset rows for a job in one transaction.
func (s *JobStore) SaveAssets(ctx context.Context, jobID string, assets []scrape.AssetRecord) (err error) {
	const query = `
INSERT INTO scrape_assets (job_id, source_url, persisted_url, object_key, content_type, bytes)
VALUES ($1, $2, $3, $4, $5, $6)`
	if len(assets) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin assets tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	for _, a := range assets {
		if !a.Succeeded() {
			continue
		}
		if _, err = tx.Exec(ctx, query, jobID, a.SourceURL, a.PersistedURL, a.Key, a.ContentType, a.Bytes); err != nil {
			return fmt.Errorf("insert asset: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit assets: %w", err)
	}
	return nil
}
