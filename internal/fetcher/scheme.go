package fetcher

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// SchemeFetcher routes each call to the Fetcher registered for the URL scheme.
type SchemeFetcher struct {
	byScheme map[string]Fetcher
}

// NewSchemeFetcher serves http and https with h and ftp with f. Either may
// be nil to leave its schemes unsupported.
func NewSchemeFetcher(h Fetcher, f Fetcher) *SchemeFetcher {
	m := make(map[string]Fetcher, 3)
	if h != nil {
		m["http"] = h
		m["https"] = h
	}
	if f != nil {
		m["ftp"] = f
	}
	return &SchemeFetcher{byScheme: m}
}

func (s *SchemeFetcher) route(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	f, ok := s.byScheme[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, eris.Errorf("fetcher: unsupported scheme %q in %s", u.Scheme, rawURL)
	}
	return f, nil
}

// Download implements Fetcher.
func (s *SchemeFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := s.route(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile implements Fetcher.
func (s *SchemeFetcher) DownloadToFile(ctx context.Context, rawURL string, dest string) (int64, error) {
	f, err := s.route(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, dest)
}

// HeadETag implements Fetcher.
func (s *SchemeFetcher) HeadETag(ctx context.Context, rawURL string) (string, error) {
	f, err := s.route(rawURL)
	if err != nil {
		return "", err
	}
	return f.HeadETag(ctx, rawURL)
}

// DownloadIfChanged implements Fetcher.
func (s *SchemeFetcher) DownloadIfChanged(ctx context.Context, rawURL string, etag string) (io.ReadCloser, string, bool, error) {
	f, err := s.route(rawURL)
	if err != nil {
		return nil, "", false, err
	}
	return f.DownloadIfChanged(ctx, rawURL, etag)
}
