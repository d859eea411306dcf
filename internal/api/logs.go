package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

const (
	defaultLogLimit = 200
	maxLogLimit     = 1000
	logsTimeout     = 3 * time.Second
)

// LogsHandler exposes the read-only job log endpoint.
type LogsHandler struct {
	logs    scrape.LogStore
	jobs    scrape.JobStore
	timeout time.Duration
	logger  *zap.Logger
}

// NewLogsHandler wires the log store, job store and logger.
func NewLogsHandler(logs scrape.LogStore, jobs scrape.JobStore, logger *zap.Logger) *LogsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogsHandler{
		logs:    logs,
		jobs:    jobs,
		timeout: logsTimeout,
		logger:  logger,
	}
}

// ListLogs handles GET /v1/scrapes/{job_id}/logs?severity=&limit=&offset=.
// It returns {"job_id": ..., "logs": [...]} in append order, 400 for invalid
// filters, 404 for unknown jobs, 503 when no log store is wired, or 500 if the
// store call fails.
func (h *LogsHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log store unavailable")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultLogLimit, maxLogLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	severity, err := parseSeverity(r.URL.Query().Get("severity"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if h.jobs != nil {
		if _, err := h.jobs.GetJob(ctx, jobID); err != nil {
			if errors.Is(err, scrape.ErrNotFound) {
				writeError(w, http.StatusNotFound, "job not found")
				return
			}
			h.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load job")
			return
		}
	}

	entries, err := h.logs.ListLogs(ctx, jobID)
	if err != nil {
		h.logger.Error("list logs failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"job_id": jobID,
		"logs":   page(filterSeverity(entries, severity), limit, offset),
	})
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseSeverity(input string) (scrape.Severity, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
		return "", nil
	case "info":
		return scrape.SeverityInfo, nil
	case "warning", "warn":
		return scrape.SeverityWarning, nil
	case "error":
		return scrape.SeverityError, nil
	case "success":
		return scrape.SeveritySuccess, nil
	default:
		return "", errors.New("invalid severity")
	}
}

func filterSeverity(in []scrape.LogEntry, severity scrape.Severity) []scrape.LogEntry {
	if severity == "" {
		return in
	}
	out := make([]scrape.LogEntry, 0, len(in))
	for _, e := range in {
		if e.Severity == severity {
			out = append(out, e)
		}
	}
	return out
}

func page(in []scrape.LogEntry, limit, offset int) []scrape.LogEntry {
	if offset >= len(in) {
		return []scrape.LogEntry{}
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}
