package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/progress"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms move with events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageJobStart},
		{JobID: "job-1", TS: now, Stage: progress.StageJobStart},
		{JobID: "job-1", TS: now, Stage: progress.StageAcquisition, Strategy: "deep", Partial: true, Dur: 12 * time.Second},
		{JobID: "job-1", TS: now, Stage: progress.StageAssets, Attempted: 20, Persisted: 17},
		{JobID: "job-1", TS: now, Stage: progress.StageLog, Severity: scrape.SeverityWarning, Message: "w"},
		{JobID: "job-1", TS: now, Stage: progress.StageJobDone, Dur: 30 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.acquisitions.WithLabelValues("deep", "true")))
	require.Equal(t, 20.0, testutil.ToFloat64(sink.assetsAttempted))
	require.Equal(t, 17.0, testutil.ToFloat64(sink.assetsPersisted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.logEntries.WithLabelValues("warning")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.acquisitionDuration, "sitelens_acquisition_duration_seconds"))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
