package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/dataset"
	"github.com/sells-group/openbuildings-cli/internal/fetcher"
)

// newFetcher serves http(s) dataset URLs and anonymous ftp mirrors.
func newFetcher() *fetcher.SchemeFetcher {
	opts := fetcher.HTTPOptions{
		UserAgent:  cfg.Fetch.UserAgent,
		Timeout:    cfg.Fetch.Timeout(),
		MaxRetries: cfg.Fetch.MaxRetries,
	}
	if cfg.Fetch.Progress {
		opts.Progress = os.Stderr
	}
	return fetcher.NewSchemeFetcher(
		fetcher.NewHTTPFetcher(opts),
		fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: cfg.Fetch.Timeout()}),
	)
}

func cachedSource(force bool) *dataset.CachedHTTPSource {
	return &dataset.CachedHTTPSource{
		URL:      cfg.Dataset.URL,
		CacheDir: cfg.Dataset.CacheDir,
		Fetcher:  newFetcher(),
		Force:    force,
	}
}

// datasetSource prefers a configured local file over the remote URL.
func datasetSource() dataset.Source {
	if cfg.Dataset.Path != "" {
		return dataset.FileSource{Path: cfg.Dataset.Path}
	}
	return cachedSource(false)
}

func loadDataset(ctx context.Context) (*dataset.Dataset, error) {
	src := datasetSource()
	zap.L().Info("loading dataset", zap.String("source", src.Name()))

	ds, err := dataset.Load(ctx, src, dataset.LoadOptions{
		ParseGeometry: cfg.Dataset.ParseGeometry,
		SkipInvalid:   cfg.Dataset.SkipInvalid,
		Limit:         cfg.Dataset.Limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "load dataset")
	}
	return ds, nil
}
