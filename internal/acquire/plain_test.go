package acquire

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlainUsesMinimalUserAgent(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "Mozilla/5.0" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte("<html><body>plain</body></html>"))
	}))
	defer srv.Close()

	res, err := NewPlain(nil, 0, 0).Acquire(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "plain", res.Strategy)
	require.Contains(t, res.Markup, "plain")
}

func TestPlainTruncatesBody(t *testing.T) {
	t.Parallel()

	srv := newFixtureServer(t, http.StatusOK, "0123456789")

	res, err := NewPlain(nil, 0, 4).Acquire(context.Background(), Request{URL: srv.URL})
	require.NoError(t, err)
	require.Equal(t, "0123", res.Markup)
}

func TestPlainFailsOnServerError(t *testing.T) {
	t.Parallel()

	srv := newFixtureServer(t, http.StatusBadGateway, "")

	_, err := NewPlain(nil, 0, 0).Acquire(context.Background(), Request{URL: srv.URL})
	require.ErrorContains(t, err, "status 502")
}

func TestPlaceholderEscapesURL(t *testing.T) {
	t.Parallel()

	res := Placeholder(`https://example.com/?q=<script>`)
	require.True(t, res.Placeholder)
	require.Equal(t, "placeholder", res.Strategy)
	require.NotContains(t, res.Markup, "<script>")
	require.Contains(t, res.Markup, "Scrape failed to retrieve content for")
}
