package scrape

import (
	"context"
	"time"
)

// JobStore persists jobs and their structured findings.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, fields JobFields) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	SaveFindings(ctx context.Context, findings Findings) error
	SaveAssets(ctx context.Context, jobID string, assets []AssetRecord) error
}

// LogStore persists job log entries.
type LogStore interface {
	AppendLogs(ctx context.Context, entries []LogEntry) error
	ListLogs(ctx context.Context, jobID string) ([]LogEntry, error)
}

// LogSink accepts job log lines. Append never blocks and never fails from the
// caller's point of view; entries for a job keep call order.
type LogSink interface {
	Append(jobID, message string, severity Severity)
}

// ObjectStore uploads and reads back opaque blobs.
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Download(ctx context.Context, key string) ([]byte, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for scrape jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
