package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart    Stage = "JOB_START"
	StageJobDone     Stage = "JOB_DONE"
	StageJobError    Stage = "JOB_ERROR"
	StageLog         Stage = "LOG"
	StageAcquisition Stage = "ACQUISITION"
	StageAssets      Stage = "ASSETS"
)

// Event is one ordered entry in a job's progress stream.
type Event struct {
	JobID string
	TS    time.Time
	Stage Stage
	// Severity and Message are set for StageLog.
	Severity scrape.Severity
	Message  string
	// Strategy names the acquisition strategy that produced the markup.
	Strategy string
	// Partial marks an acquisition truncated by the time budget.
	Partial bool
	// Attempted / Persisted count download attempts for StageAssets.
	Attempted int
	Persisted int
	// Dur is the stage or job latency.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobDone, StageJobError:
	case StageLog:
		if e.Message == "" {
			return errors.New("log event requires message")
		}
		switch e.Severity {
		case scrape.SeverityInfo, scrape.SeverityWarning, scrape.SeverityError, scrape.SeveritySuccess:
		default:
			return fmt.Errorf("unknown severity %q", e.Severity)
		}
	case StageAcquisition:
		if e.Strategy == "" {
			return errors.New("acquisition event requires strategy")
		}
	case StageAssets:
		if e.Persisted > e.Attempted || e.Persisted < 0 {
			return errors.New("persisted assets must be within [0, attempted]")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// LogEntry converts a StageLog event to the stored form.
func (e Event) LogEntry() scrape.LogEntry {
	return scrape.LogEntry{
		JobID:     e.JobID,
		Message:   e.Message,
		Severity:  e.Severity,
		Timestamp: e.TS,
	}
}
