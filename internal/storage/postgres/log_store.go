package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// LogStore appends job log entries to scrape_logs.
type LogStore struct {
	db DB
}

// NewLogStore wraps an open pool.
func NewLogStore(db DB) (*LogStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LogStore{db: db}, nil
}

// AppendLogs writes entries in order inside a single transaction.
func (s *LogStore) AppendLogs(ctx context.Context, entries []scrape.LogEntry) (err error) {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin logs tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	const query = `INSERT INTO scrape_logs (job_id, message, severity, created_at) VALUES ($1, $2, $3, $4)`
	for _, e := range entries {
		if _, err = tx.Exec(ctx, query, e.JobID, e.Message, string(e.Severity), e.Timestamp); err != nil {
			return fmt.Errorf("insert log: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit logs: %w", err)
	}
	return nil
}

// ListLogs returns a job's entries in insertion order.
func (s *LogStore) ListLogs(ctx context.Context, jobID string) ([]scrape.LogEntry, error) {
	const query = `
SELECT job_id, message, severity, created_at
FROM scrape_logs
WHERE job_id = $1
ORDER BY id`
	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	entries := []scrape.LogEntry{}
	for rows.Next() {
		var (
			e        scrape.LogEntry
			severity string
		)
		if err := rows.Scan(&e.JobID, &e.Message, &severity, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan log row: %w", err)
		}
		e.Severity = scrape.Severity(severity)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate logs: %w", err)
	}
	return entries, nil
}
