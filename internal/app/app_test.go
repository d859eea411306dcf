// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitelens/internal/app"
	"github.com/JakeFAU/sitelens/internal/config"
	"github.com/JakeFAU/sitelens/internal/pipeline"
	"github.com/JakeFAU/sitelens/internal/scrape"
	"github.com/JakeFAU/sitelens/internal/storage"
	"github.com/JakeFAU/sitelens/internal/storage/memory"
)

const testPage = `<!doctype html>
<html>
<head>
  <title>Acme Widgets</title>
  <meta name="description" content="Widgets for every occasion.">
  <style>body { color: #1a2b3c; font-family: "Inter", sans-serif; }</style>
</head>
<body>
  <h1>Widgets</h1>
  <p>We build widgets that last a lifetime and then some more.</p>
  <a href="/about">About</a>
</body>
</html>`

// testConfig returns defaults with in-memory backends and no global metric registration.
func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Metrics.Enabled = false
	cfg.Queue.Workers = 1
	return cfg
}

func TestNewApp_MemoryBackends(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, storage.TierPublic, a.Stores.Tier)
	assert.IsType(t, &memory.JobStore{}, a.Stores.Jobs)
	assert.IsType(t, &memory.BlobStore{}, a.Objects)
	require.NotNil(t, a.Orchestrator)
	require.NotNil(t, a.Dispatcher)
	require.NoError(t, a.Ready(context.Background()))

	rec := httptest.NewRecorder()
	a.Server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApp_RejectsUnknownProviders(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"storage", func(c *config.Config) { c.Storage.Provider = "s3" }, "unknown storage provider"},
		{"database", func(c *config.Config) { c.Database.Provider = "mysql" }, "unknown database provider"},
		{"browser", func(c *config.Config) { c.Browser.Source = "cloud" }, "unknown browser source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := app.New(context.Background(), cfg, zap.NewNop())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestApp_ScrapeRunsPipeline(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(testPage))
	}))
	defer site.Close()

	a, err := app.New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	jobID, out, err := a.Scrape(context.Background(), site.URL, scrape.ModeFast)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)
	assert.Equal(t, scrape.JobStatusCompleted, out.Status)
	assert.Equal(t, "Acme Widgets", out.Result.Metadata.Title)
	assert.Equal(t, "fast", out.Result.Strategy)

	job, err := a.Stores.Jobs.GetJob(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, scrape.JobStatusCompleted, job.Status)
	assert.NotEmpty(t, job.ArtifactURL)

	data, err := a.Objects.Download(context.Background(), pipeline.ArtifactKey(jobID))
	require.NoError(t, err)
	var artifact scrape.Result
	require.NoError(t, json.Unmarshal(data, &artifact))
	assert.Equal(t, "Widgets for every occasion.", artifact.Metadata.Description)
}

func TestApp_ScrapeRejectsBadInput(t *testing.T) {
	a, err := app.New(context.Background(), testConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer a.Close(context.Background())

	_, _, err = a.Scrape(context.Background(), "ftp://example.com", scrape.ModeFast)
	require.Error(t, err)

	_, _, err = a.Scrape(context.Background(), "https://example.com", scrape.Mode("turbo"))
	require.Error(t, err)
}
