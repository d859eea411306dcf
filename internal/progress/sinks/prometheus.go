package sinks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/sitelens/internal/progress"
)

// PrometheusSink exports scrape progress as Prometheus collectors.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	acquisitions        *prometheus.CounterVec
	acquisitionDuration *prometheus.HistogramVec
	assetsAttempted     prometheus.Counter
	assetsPersisted     prometheus.Counter
	logEntries          *prometheus.CounterVec

	mu      sync.Mutex
	running map[string]struct{}
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitelens_jobs_started_total",
			Help: "Total scrape jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitelens_jobs_completed_total",
			Help: "Total scrape jobs finished, partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sitelens_jobs_running",
			Help: "Current number of running scrape jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitelens_job_runtime_seconds",
			Help:    "Wall time per finished scrape job.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 55, 60},
		}, []string{"result"}),
		acquisitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitelens_acquisitions_total",
			Help: "Acquisitions partitioned by winning strategy and truncation.",
		}, []string{"strategy", "partial"}),
		acquisitionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sitelens_acquisition_duration_seconds",
			Help:    "Acquisition latency by strategy.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 45},
		}, []string{"strategy"}),
		assetsAttempted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitelens_assets_attempted_total",
			Help: "Image downloads attempted.",
		}),
		assetsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sitelens_assets_persisted_total",
			Help: "Image downloads uploaded to object storage.",
		}),
		logEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sitelens_job_log_entries_total",
			Help: "Job log lines by severity.",
		}, []string{"severity"}),
		running: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.acquisitions,
		s.acquisitionDuration,
		s.assetsAttempted,
		s.assetsPersisted,
		s.logEntries,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.track(evt.JobID, true) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone:
			s.finish(evt, "success")
		case progress.StageJobError:
			s.finish(evt, "error")
		case progress.StageAcquisition:
			s.acquisitions.WithLabelValues(evt.Strategy, strconv.FormatBool(evt.Partial)).Inc()
			if evt.Dur > 0 {
				s.acquisitionDuration.WithLabelValues(evt.Strategy).Observe(evt.Dur.Seconds())
			}
		case progress.StageAssets:
			s.assetsAttempted.Add(float64(evt.Attempted))
			s.assetsPersisted.Add(float64(evt.Persisted))
		case progress.StageLog:
			s.logEntries.WithLabelValues(string(evt.Severity)).Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, result string) {
	s.jobsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.track(evt.JobID, false) {
		s.jobsRunning.Dec()
	}
}

// track records a job as running (start) or finished and reports whether the
// set changed.
func (s *PrometheusSink) track(jobID string, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[jobID]
	if start {
		if ok {
			return false
		}
		s.running[jobID] = struct{}{}
		return true
	}
	if !ok {
		return false
	}
	delete(s.running, jobID)
	return true
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
