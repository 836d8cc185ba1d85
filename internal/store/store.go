// Package store persists nearest-building results and bulk-loads buildings.
package store

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/openbuildings-cli/internal/config"
	"github.com/sells-group/openbuildings-cli/internal/report"
)

// ResultFilter specifies criteria for listing results.
type ResultFilter struct {
	Landmark string `json:"landmark,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

const defaultListLimit = 100

func (f ResultFilter) limit() int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}

// Store defines the persistence interface for query results.
type Store interface {
	SaveResult(ctx context.Context, r report.Result) error
	ListResults(ctx context.Context, filter ResultFilter) ([]report.Result, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates the store selected by cfg.Driver and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "openbuildings.db"
		}
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrap(err, "store: create sqlite dir")
			}
		}
		st, err = NewSQLite(dsn)
	case "postgres":
		st, err = NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns})
	default:
		return nil, eris.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// nullable maps NaN to SQL NULL.
func nullable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func fromNull(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

// resultColumns is the column order shared by insert and select statements.
const resultColumns = `id, landmark, landmark_lat, landmark_lon, latitude, longitude, area_in_meters, confidence,
	plus_code, record_index, source_row, distance_degrees, distance_meters, s2_token, dataset, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (report.Result, error) {
	var (
		r          report.Result
		id         string
		area, conf sql.NullFloat64
	)
	err := row.Scan(
		&id, &r.Landmark.Name, &r.Landmark.Latitude, &r.Landmark.Longitude,
		&r.Building.Latitude, &r.Building.Longitude, &area, &conf,
		&r.Building.PlusCode, &r.Index, &r.Building.Row,
		&r.Distance, &r.DistanceMeters, &r.S2Token, &r.Dataset, &r.CreatedAt,
	)
	if err != nil {
		return report.Result{}, err
	}
	r.Building.AreaInMeters = fromNull(area)
	r.Building.Confidence = fromNull(conf)
	if err := r.ID.UnmarshalText([]byte(id)); err != nil {
		return report.Result{}, eris.Wrapf(err, "store: parse result id %q", id)
	}
	return r, nil
}

func resultArgs(r report.Result) []any {
	b := r.Building
	return []any{
		r.ID.String(), r.Landmark.Name, r.Landmark.Latitude, r.Landmark.Longitude,
		b.Latitude, b.Longitude, nullable(b.AreaInMeters), nullable(b.Confidence),
		b.PlusCode, r.Index, b.Row, r.Distance, r.DistanceMeters, r.S2Token, r.Dataset, r.CreatedAt.UTC(),
	}
}
