package store

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/openbuildings-cli/internal/db"
	"github.com/sells-group/openbuildings-cli/internal/model"
)

// BuildingsTable is the bulk-load target table.
const BuildingsTable = "buildings"

// DefaultBatchSize is the number of rows per COPY.
const DefaultBatchSize = 50_000

var buildingColumns = []string{
	"dataset", "source_row", "latitude", "longitude",
	"area_in_meters", "confidence", "full_plus_code", "footprint",
}

// LoadBuildings bulk-copies records into the buildings table in batches and
// returns the number of rows written. Footprints are stored as EWKB with
// SRID 4326.
func (s *PostgresStore) LoadBuildings(ctx context.Context, dataset string, records []model.Building, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	log := zap.L().With(zap.String("component", "store.buildings"), zap.String("dataset", dataset))

	var total int64
	for start := 0; start < len(records); start += batchSize {
		if err := ctx.Err(); err != nil {
			return total, eris.Wrap(err, "postgres: load buildings")
		}
		batch := records[start:min(start+batchSize, len(records))]

		n, err := db.CopyFromFunc(ctx, s.pool, BuildingsTable, buildingColumns, len(batch), func(i int) ([]any, error) {
			return buildingRow(dataset, batch[i])
		})
		if err != nil {
			return total, eris.Wrapf(err, "postgres: load buildings batch at %d", start)
		}
		total += n
		log.Debug("batch copied", zap.Int("offset", start), zap.Int64("rows", n))
	}

	log.Info("buildings loaded", zap.Int64("rows", total))
	return total, nil
}

func buildingRow(dataset string, b model.Building) ([]any, error) {
	footprint, err := EncodeFootprint(b.Footprint)
	if err != nil {
		return nil, eris.Wrapf(err, "row %d", b.Row)
	}
	return []any{
		dataset, b.Row, b.Latitude, b.Longitude,
		nullable(b.AreaInMeters), nullable(b.Confidence), b.PlusCode, footprint,
	}, nil
}

// EncodeFootprint converts a footprint to EWKB bytes with SRID 4326. The input
// is not modified. Returns nil, nil for a nil footprint.
func EncodeFootprint(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, nil
	}

	switch t := g.(type) {
	case *geom.Point:
		g = t.Clone().SetSRID(4326)
	case *geom.Polygon:
		g = t.Clone().SetSRID(4326)
	case *geom.MultiPolygon:
		g = t.Clone().SetSRID(4326)
	default:
		return nil, eris.Errorf("store: unsupported footprint type %T", g)
	}

	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "store: encode EWKB")
	}
	return data, nil
}
