package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/config"
	"github.com/JakeFAU/sitelens/internal/download"
	"github.com/JakeFAU/sitelens/internal/hash/sha256"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/pipeline"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// Enqueuer accepts jobs for background processing. *dispatcher.Dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, item scrape.QueueItem) error
}

// Runner executes a job synchronously. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, item scrape.QueueItem) (pipeline.Outcome, error)
}

// Deps are the collaborators a Server needs. Downloader, Runner and Ready are
// optional; the routes that need them answer 501 or report ready when absent.
type Deps struct {
	Jobs       scrape.JobStore
	Logs       scrape.LogStore
	Objects    scrape.ObjectStore
	Queue      Enqueuer
	Runner     Runner
	Downloader pipeline.AssetDownloader
	IDs        scrape.IDGenerator
	Clock      scrape.Clock
	Ready      func(ctx context.Context) error
}

// Server wires HTTP handlers to the queue and stores.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

const (
	enqueueTimeout = 5 * time.Second
	readyTimeout   = 2 * time.Second
	maxBodyBytes   = 1 << 20
)

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	requestTimeout := cfg.Server.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 90 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", metrics.Handler())
	}

	logs := NewLogsHandler(deps.Logs, deps.Jobs, logger)
	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Route("/scrapes", func(r chi.Router) {
			r.Post("/", s.submitScrape)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getScrape)
				r.Get("/result", s.getResult)
				r.Get("/logs", logs.ListLogs)
				r.Post("/assets", s.downloadAssets)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scrapeRequest struct {
	URL  string `json:"url"`
	Mode string `json:"mode"`
	Wait bool   `json:"wait"`
}

type jobResponse struct {
	JobID       string           `json:"job_id"`
	URL         string           `json:"url"`
	Mode        scrape.Mode      `json:"mode"`
	Status      scrape.JobStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	TotalAssets int              `json:"total_assets"`
	ArtifactURL string           `json:"artifact_url,omitempty"`
	Error       string           `json:"error,omitempty"`
	Result      *scrape.Result   `json:"result,omitempty"`
}

// failureMessage is the only failure detail exposed to API callers.
const failureMessage = "scraping failed"

func toJobResponse(job scrape.Job) jobResponse {
	resp := jobResponse{
		JobID:       job.ID,
		URL:         job.URL,
		Mode:        job.Mode,
		Status:      job.Status,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		TotalAssets: job.TotalAssets,
		ArtifactURL: job.ArtifactURL,
	}
	if job.Status == scrape.JobStatusFailed {
		resp.Error = failureMessage
	}
	return resp
}

func (s *Server) submitScrape(w http.ResponseWriter, r *http.Request) {
	var req scrapeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target, err := normalizeURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	mode := s.cfg.Mode()
	if mode == "" {
		mode = scrape.ModeFast
	}
	if req.Mode != "" {
		mode = scrape.Mode(strings.ToLower(req.Mode))
	}
	if !mode.Valid() {
		writeError(w, http.StatusBadRequest, "mode must be one of fast, deep, auto")
		return
	}
	if req.Wait && s.deps.Runner == nil {
		writeError(w, http.StatusNotImplemented, "synchronous scrapes are not enabled")
		return
	}

	job, err := s.createJob(r.Context(), target, mode)
	if err != nil {
		s.logger.Error("create job failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	item := scrape.QueueItem{JobID: job.ID, URL: job.URL, Mode: job.Mode, Submitted: job.CreatedAt.Unix()}

	if req.Wait {
		s.runInline(w, r, job, item)
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), enqueueTimeout)
	defer cancel()
	if err := s.deps.Queue.Enqueue(queueCtx, item); err != nil {
		s.logger.Error("enqueue job failed", zap.String("job_id", job.ID), zap.Error(err))
		status := http.StatusServiceUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, "job queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, toJobResponse(job))
}

func (s *Server) runInline(w http.ResponseWriter, r *http.Request, job scrape.Job, item scrape.QueueItem) {
	out, runErr := s.deps.Runner.Run(r.Context(), item)
	stored, err := s.deps.Jobs.GetJob(r.Context(), job.ID)
	if err != nil {
		stored = job
		stored.Status = out.Status
	}
	resp := toJobResponse(stored)
	if runErr != nil {
		var acqErr *scrape.AcquisitionError
		if errors.As(runErr, &acqErr) {
			writeJSON(w, http.StatusBadGateway, resp)
			return
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	resp.Result = &out.Result
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createJob(ctx context.Context, target string, mode scrape.Mode) (scrape.Job, error) {
	jobID, err := s.deps.IDs.NewID()
	if err != nil {
		return scrape.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	job := scrape.Job{
		ID:        jobID,
		URL:       target,
		Mode:      mode,
		Status:    scrape.JobStatusPending,
		CreatedAt: s.deps.Clock.Now(),
	}
	if err := s.deps.Jobs.CreateJob(ctx, job); err != nil {
		return scrape.Job{}, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

func (s *Server) getScrape(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if !job.Status.Terminal() {
		writeError(w, http.StatusConflict, "result not ready")
		return
	}
	data, err := s.deps.Objects.Download(r.Context(), pipeline.ArtifactKey(job.ID))
	if errors.Is(err, scrape.ErrNotFound) {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		s.logger.Error("download result failed", zap.String("job_id", job.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	etag := sha256.ETag(data)
	w.Header().Set("ETag", etag)
	if sha256.Matches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("write result failed", zap.Error(err))
	}
}

type assetsRequest struct {
	URLs []string `json:"urls"`
}

type assetsResponse struct {
	JobID     string               `json:"job_id"`
	Attempted int                  `json:"attempted"`
	Persisted int                  `json:"persisted"`
	Assets    []scrape.AssetRecord `json:"assets"`
}

// downloadAssets materializes an explicit URL list for an existing job.
func (s *Server) downloadAssets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Downloader == nil {
		writeError(w, http.StatusNotImplemented, "asset downloads are not enabled")
		return
	}
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	var req assetsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	urls := make([]string, 0, len(req.URLs))
	for _, raw := range req.URLs {
		u, err := normalizeURL(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid asset url %q", raw))
			return
		}
		urls = append(urls, u)
	}
	if len(urls) == 0 {
		writeError(w, http.StatusBadRequest, "urls required")
		return
	}
	if limit := s.cfg.Downloader.MaxCandidates; limit > 0 && len(urls) > limit {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d urls per request", limit))
		return
	}

	records := s.deps.Downloader.Download(r.Context(), job.ID, urls, job.URL)
	if err := s.deps.Jobs.SaveAssets(r.Context(), job.ID, records); err != nil {
		s.logger.Warn("save assets failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, assetsResponse{
		JobID:     job.ID,
		Attempted: len(records),
		Persisted: len(download.Persisted(records)),
		Assets:    records,
	})
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (scrape.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.deps.Jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, scrape.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return scrape.Job{}, false
	}
	if err != nil {
		s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return scrape.Job{}, false
	}
	return job, true
}

// normalizeURL accepts absolute http(s) URLs and bare hostnames.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url required")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", errors.New("url must be an absolute http(s) URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errors.New("url must use http or https")
	}
	return u.String(), nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.String("request_id", reqID),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
