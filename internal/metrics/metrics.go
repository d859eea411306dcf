// Package metrics exposes process-wide Prometheus collectors for the scrape
// service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	assetDownloadsTotal        *prometheus.CounterVec
	assetBytesTotal            *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	budgetTripsTotal           *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	browserSessions            *prometheus.GaugeVec
	queueDepth                 prometheus.Gauge

	once sync.Once
)

// Init registers the collectors with the default registry. It is safe to call
// more than once.
func Init() {
	once.Do(func() {
		assetDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitelens_asset_downloads_total",
				Help: "Asset download attempts, labeled by origin site and result.",
			},
			[]string{"site", "result"},
		)

		assetBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitelens_asset_bytes_total",
				Help: "Bytes uploaded to object storage, labeled by origin site.",
			},
			[]string{"site"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
			},
			[]string{"method", "route"},
		)

		budgetTripsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sitelens_time_budget_trips_total",
				Help: "Times the wall-clock governor cut a stage short, labeled by stage.",
			},
			[]string{"stage"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitelens_active_workers",
				Help: "Number of workers currently running a scrape.",
			},
		)

		browserSessions = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sitelens_browser_sessions",
				Help: "Open headless browser sessions, labeled by launch source.",
			},
			[]string{"source"},
		)

		queueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sitelens_queue_depth",
				Help: "Jobs waiting in the in-memory queue.",
			},
		)
	})
}

// SanitizeSite extracts a lowercase hostname, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAssetDownload records one download attempt.
func ObserveAssetDownload(sourceURL string, ok bool, bytes int64) {
	if assetDownloadsTotal == nil {
		return
	}
	site := SanitizeSite(sourceURL)
	result := "failed"
	if ok {
		result = "persisted"
		assetBytesTotal.WithLabelValues(site).Add(float64(bytes))
	}
	assetDownloadsTotal.WithLabelValues(site, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveBudgetTrip counts a stage truncated by the time budget.
func ObserveBudgetTrip(stage string) {
	if budgetTripsTotal == nil {
		return
	}
	budgetTripsTotal.WithLabelValues(stage).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if activeWorkers != nil {
		activeWorkers.Dec()
	}
}

// BrowserSessionOpened and BrowserSessionClosed track live sessions per source.
func BrowserSessionOpened(source string) {
	if browserSessions != nil {
		browserSessions.WithLabelValues(source).Inc()
	}
}

// BrowserSessionClosed is the counterpart of BrowserSessionOpened.
func BrowserSessionClosed(source string) {
	if browserSessions != nil {
		browserSessions.WithLabelValues(source).Dec()
	}
}

// SetQueueDepth records the current queue length.
func SetQueueDepth(n int) {
	if queueDepth != nil {
		queueDepth.Set(float64(n))
	}
}
