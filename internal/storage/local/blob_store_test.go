// Package local_test tests the local filesystem object store.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/scrape"
	"github.com/JakeFAU/sitelens/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "assets")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.Upload(ctx, "job-1/img_abcd1234_logo.png", []byte("png"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "file://"+filepath.Join(dir, "job-1", "img_abcd1234_logo.png"), uri)

	got, err := store.Download(ctx, "job-1/img_abcd1234_logo.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got)

	_, err = store.Download(ctx, "job-1/missing.png")
	assert.ErrorIs(t, err, scrape.ErrNotFound)
}

func TestUploadPublicBaseURL(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir(), PublicBaseURL: "https://assets.example.com/"})
	require.NoError(t, err)

	uri, err := store.Upload(context.Background(), "job-1/result.json", []byte("{}"), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "https://assets.example.com/job-1/result.json", uri)
}

func TestPathTraversal(t *testing.T) {
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), "../escape.txt", []byte("x"), "")
	assert.ErrorContains(t, err, "path traversal")
	_, err = store.Download(context.Background(), "../../etc/passwd")
	assert.ErrorContains(t, err, "path traversal")
}
