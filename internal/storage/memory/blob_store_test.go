package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/scrape"
)

func TestBlobStoreUploadCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.Upload(context.Background(), "job/img_1.png", payload, "image/png")
	require.NoError(t, err)
	require.Equal(t, "memory://job/img_1.png", uri)

	payload[0] = 'C'
	got, err := store.Download(context.Background(), "job/img_1.png")
	require.NoError(t, err)
	require.Equal(t, "content", string(got))
	require.Equal(t, "image/png", store.ContentType("job/img_1.png"))
}

func TestBlobStoreDownloadMissing(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().Download(context.Background(), "nope")
	require.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestBlobStoreRejectsEmptyKey(t *testing.T) {
	t.Parallel()

	_, err := NewBlobStore().Upload(context.Background(), " ", nil, "")
	require.Error(t, err)
}
