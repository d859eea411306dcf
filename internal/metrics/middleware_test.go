package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareCountsByMethodAndCode(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/scrapes/{job_id}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	r.Get("/v1/scrapes/{job_id}/result", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.WriteHeader(http.StatusInternalServerError)
	})
	r.Post("/v1/scrapes", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	tests := []struct {
		method string
		path   string
		code   string
	}{
		{http.MethodGet, "/v1/scrapes/abc", "200"},
		{http.MethodGet, "/v1/scrapes/abc/result", "409"},
		{http.MethodPost, "/v1/scrapes", "202"},
		{http.MethodDelete, "/nowhere", "404"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			counter := httpRequestsTotal.WithLabelValues(tt.method, tt.code)
			before := testutil.ToFloat64(counter)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, before+1, testutil.ToFloat64(counter))
		})
	}
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))
}

func TestRoutePatternFallsBackWithoutChi(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/plain", nil)
	assert.Equal(t, unmatchedRoute, routePattern(req))
}

func TestStatusWriterUnwrap(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	assert.Same(t, rec, sw.Unwrap())
	assert.Equal(t, http.StatusOK, sw.code())
}
