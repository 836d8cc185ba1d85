// Package dataset resolves, downloads and parses Open Buildings CSV files.
package dataset

import (
	"context"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/fetcher"
)

// Source yields the raw (decompressed) CSV stream of a dataset.
type Source interface {
	// Name identifies the source in logs and summaries.
	Name() string
	// Open returns the decompressed CSV content. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
}

// FileSource reads a local CSV file, gzip-compressed or not.
type FileSource struct {
	Path string
}

// Name returns the file path.
func (s FileSource) Name() string { return s.Path }

// Open opens the file, decompressing gzip content.
func (s FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	rc, err := fetcher.OpenMaybeGzip(s.Path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open file source")
	}
	return rc, nil
}

// CachedHTTPSource downloads a remote dataset into CacheDir once and reads
// the cached copy afterwards.
type CachedHTTPSource struct {
	URL      string
	CacheDir string
	Fetcher  fetcher.Fetcher
	// Force re-downloads even when a cached copy exists.
	Force bool
}

// Name returns the dataset URL.
func (s *CachedHTTPSource) Name() string { return s.URL }

// Path returns the cache location: CacheDir joined with the URL basename.
func (s *CachedHTTPSource) Path() string {
	name := s.URL
	if u, err := url.Parse(s.URL); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	return filepath.Join(s.CacheDir, name)
}

func (s *CachedHTTPSource) etagPath() string { return s.Path() + ".etag" }

// Ensure downloads the dataset unless a non-empty cached copy exists.
// Returns the local path and whether a download happened.
func (s *CachedHTTPSource) Ensure(ctx context.Context) (string, bool, error) {
	dest := s.Path()
	log := zap.L().With(
		zap.String("component", "dataset.source"),
		zap.String("url", s.URL),
		zap.String("path", dest),
	)

	if !s.Force {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			log.Debug("dataset already cached, skipping download")
			return dest, false, nil
		}
	}
	if s.Fetcher == nil {
		return "", false, eris.New("dataset: no fetcher configured for download")
	}

	log.Info("downloading dataset")
	n, err := s.Fetcher.DownloadToFile(ctx, s.URL, dest)
	if err != nil {
		return "", false, eris.Wrap(err, "dataset: download")
	}
	// The etag belonged to the previous copy.
	_ = os.Remove(s.etagPath())

	log.Info("dataset downloaded", zap.Int64("bytes", n))
	return dest, true, nil
}

// Refresh re-downloads the dataset only when the server reports a new ETag.
// Returns true when the cached copy was replaced.
func (s *CachedHTTPSource) Refresh(ctx context.Context) (bool, error) {
	if s.Fetcher == nil {
		return false, eris.New("dataset: no fetcher configured for refresh")
	}
	dest := s.Path()

	var etag string
	if raw, err := os.ReadFile(s.etagPath()); err == nil {
		etag = strings.TrimSpace(string(raw))
	}
	if _, err := os.Stat(dest); err != nil {
		etag = ""
	}

	body, newETag, changed, err := s.Fetcher.DownloadIfChanged(ctx, s.URL, etag)
	if err != nil {
		return false, eris.Wrap(err, "dataset: refresh")
	}
	if !changed {
		zap.L().Info("dataset unchanged", zap.String("url", s.URL), zap.String("etag", etag))
		return false, nil
	}
	defer body.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, eris.Wrap(err, "dataset: create cache dir")
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return false, eris.Wrap(err, "dataset: create temp file")
	}
	if _, err := io.Copy(f, body); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return false, eris.Wrap(err, "dataset: write refreshed copy")
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return false, eris.Wrap(err, "dataset: close refreshed copy")
	}
	if err := os.Rename(tmp, dest); err != nil {
		return false, eris.Wrap(err, "dataset: replace cached copy")
	}
	if newETag != "" {
		if err := os.WriteFile(s.etagPath(), []byte(newETag), 0o644); err != nil {
			return true, eris.Wrap(err, "dataset: write etag")
		}
	}
	return true, nil
}

// Open ensures the dataset is cached and opens it.
func (s *CachedHTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	p, _, err := s.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	return FileSource{Path: p}.Open(ctx)
}
