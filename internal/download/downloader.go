// Package download materializes remote images into an object store in
// fixed-size concurrent batches.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	idgen "github.com/JakeFAU/sitelens/internal/id/uuid"
	"github.com/JakeFAU/sitelens/internal/metrics"
	"github.com/JakeFAU/sitelens/internal/scrape"
)

// DefaultContentType is recorded when the origin sends none.
const DefaultContentType = "image/png"

var errTooLarge = errors.New("asset exceeds size limit")

// Config controls batch size and per-attempt limits.
type Config struct {
	BatchSize int
	Timeout   time.Duration
	UserAgent string
	MaxBytes  int64
	Transport http.RoundTripper
}

// Downloader fetches candidate URLs and uploads them under a job-scoped key.
type Downloader struct {
	cfg    Config
	client *http.Client
	store  scrape.ObjectStore
	newID  func() string
	logger *zap.Logger
}

// New builds a Downloader writing to store.
func New(cfg Config, store scrape.ObjectStore, logger *zap.Logger) *Downloader {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 15 << 20
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{
		cfg:    cfg,
		client: &http.Client{Transport: cfg.Transport},
		store:  store,
		newID:  idgen.Short,
		logger: logger,
	}
}

// Download attempts every URL once and returns one record per attempt in
// input order. Failed attempts have an empty PersistedURL; they are never
// reported as an error.
func (d *Downloader) Download(ctx context.Context, jobID string, urls []string, referer string) []scrape.AssetRecord {
	records := make([]scrape.AssetRecord, len(urls))
	for _, b := range planBatches(len(urls), d.cfg.BatchSize) {
		if ctx.Err() != nil {
			for i := b.start; i < b.end; i++ {
				records[i] = scrape.AssetRecord{SourceURL: urls[i]}
			}
			continue
		}
		var g errgroup.Group
		for i := b.start; i < b.end; i++ {
			g.Go(func() error {
				records[i] = d.fetchOne(ctx, jobID, urls[i], referer)
				return nil
			})
		}
		_ = g.Wait()
	}
	return records
}

// Persisted filters records down to the successful ones.
func Persisted(records []scrape.AssetRecord) []scrape.AssetRecord {
	out := make([]scrape.AssetRecord, 0, len(records))
	for _, r := range records {
		if r.Succeeded() {
			out = append(out, r)
		}
	}
	return out
}

func (d *Downloader) fetchOne(ctx context.Context, jobID, src, referer string) scrape.AssetRecord {
	record := scrape.AssetRecord{SourceURL: src}
	data, contentType, err := d.fetch(ctx, src, referer)
	if err != nil {
		d.logger.Debug("asset download failed", zap.String("job_id", jobID), zap.String("url", src), zap.Error(err))
		metrics.ObserveAssetDownload(src, false, 0)
		return record
	}
	key := jobID + "/" + d.filename(src)
	persisted, err := d.store.Upload(ctx, key, data, contentType)
	if err != nil {
		d.logger.Warn("asset upload failed", zap.String("job_id", jobID), zap.String("key", key), zap.Error(err))
		metrics.ObserveAssetDownload(src, false, 0)
		return record
	}
	record.PersistedURL = persisted
	record.Key = key
	record.ContentType = contentType
	record.Bytes = int64(len(data))
	metrics.ObserveAssetDownload(src, true, record.Bytes)
	return record
}

func (d *Downloader) fetch(ctx context.Context, src, referer string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	if d.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", d.cfg.UserAgent)
	}
	if referer != "" {
		req.Header.Set("Referer", referer)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("status %d", resp.StatusCode)
	}
	if resp.ContentLength > d.cfg.MaxBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", errTooLarge, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, d.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > d.cfg.MaxBytes {
		return nil, "", fmt.Errorf("%w: over %d bytes", errTooLarge, d.cfg.MaxBytes)
	}
	contentType := strings.TrimSpace(resp.Header.Get("Content-Type"))
	if contentType == "" {
		contentType = DefaultContentType
	}
	return data, contentType, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// filename returns "img_<shortid>_<basename>" with the query string dropped
// and unsafe characters replaced.
func (d *Downloader) filename(src string) string {
	return "img_" + d.newID() + "_" + sanitizeBase(src)
}

func sanitizeBase(src string) string {
	base := ""
	if u, err := url.Parse(src); err == nil {
		base = path.Base(u.Path)
	}
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" || base == "/" {
		base = "asset"
	}
	if len(base) > 80 {
		base = base[len(base)-80:]
	}
	return base
}

type batch struct {
	start, end int
}

// planBatches splits n items into consecutive batches of at most size.
func planBatches(n, size int) []batch {
	if size <= 0 {
		size = 1
	}
	var out []batch
	for start := 0; start < n; start += size {
		out = append(out, batch{start: start, end: min(start+size, n)})
	}
	return out
}
