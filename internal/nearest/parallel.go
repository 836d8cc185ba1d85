package nearest

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/openbuildings-cli/internal/model"
)

// minShardSize keeps tiny inputs on the single-threaded path.
const minShardSize = 4096

// FindNearestParallel splits records into contiguous shards, scans each in its
// own goroutine and merges the shard minima. The result is identical to
// FindNearest, including tie-breaks and which invalid record is reported.
func FindNearestParallel(ctx context.Context, records []model.Building, ref model.ReferencePoint, workers int) (Match, error) {
	if len(records) == 0 {
		return Match{}, ErrEmptyDataset
	}
	if workers > len(records)/minShardSize {
		workers = len(records) / minShardSize
	}
	if workers <= 1 {
		return FindNearest(records, ref)
	}
	if !ref.IsFinite() {
		return Match{}, &InvalidCoordinateError{Index: -1, Latitude: ref.Latitude, Longitude: ref.Longitude}
	}

	shardSize := (len(records) + workers - 1) / workers
	matches := make([]Match, workers)
	errs := make([]error, workers)

	g, gctx := errgroup.WithContext(ctx)
	for w := range workers {
		start := w * shardSize
		end := min(start+shardSize, len(records))
		if start >= end {
			errs[w] = ErrEmptyDataset
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches[w], errs[w] = scan(records[start:end], start, ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Match{}, eris.Wrap(err, "nearest: parallel scan")
	}
	if err := ctx.Err(); err != nil {
		return Match{}, eris.Wrap(err, "nearest: parallel scan")
	}

	best := -1
	for w := range workers {
		if errs[w] == ErrEmptyDataset {
			continue
		}
		if errs[w] != nil {
			return Match{}, errs[w]
		}
		// Shards are visited in input order, so strict < keeps the lower index.
		if best < 0 || matches[w].Distance < matches[best].Distance {
			best = w
		}
	}
	return matches[best], nil
}
