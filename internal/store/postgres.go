package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/openbuildings-cli/internal/db"
	"github.com/sells-group/openbuildings-cli/internal/report"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = min(minConns, maxConns)
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS results (
	id               TEXT PRIMARY KEY,
	landmark         TEXT NOT NULL,
	landmark_lat     DOUBLE PRECISION NOT NULL,
	landmark_lon     DOUBLE PRECISION NOT NULL,
	latitude         DOUBLE PRECISION NOT NULL,
	longitude        DOUBLE PRECISION NOT NULL,
	area_in_meters   DOUBLE PRECISION,
	confidence       DOUBLE PRECISION,
	plus_code        TEXT NOT NULL,
	record_index     INTEGER NOT NULL,
	source_row       INTEGER NOT NULL DEFAULT 0,
	distance_degrees DOUBLE PRECISION NOT NULL,
	distance_meters  DOUBLE PRECISION NOT NULL,
	s2_token         TEXT NOT NULL,
	dataset          TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_results_landmark ON results(landmark);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);

CREATE TABLE IF NOT EXISTS buildings (
	id             BIGSERIAL PRIMARY KEY,
	dataset        TEXT NOT NULL DEFAULT '',
	source_row     INTEGER NOT NULL,
	latitude       DOUBLE PRECISION NOT NULL,
	longitude      DOUBLE PRECISION NOT NULL,
	area_in_meters DOUBLE PRECISION,
	confidence     DOUBLE PRECISION,
	full_plus_code TEXT NOT NULL,
	footprint      BYTEA,
	loaded_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_buildings_plus_code ON buildings(full_plus_code);
CREATE INDEX IF NOT EXISTS idx_buildings_lat_lon ON buildings(latitude, longitude);
`

// Migrate creates the results and buildings tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveResult inserts r.
func (s *PostgresStore) SaveResult(ctx context.Context, r report.Result) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO results (`+resultColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		resultArgs(r)...,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert result %s", r.ID)
	}
	return nil
}

// ListResults returns saved results, newest first.
func (s *PostgresStore) ListResults(ctx context.Context, filter ResultFilter) ([]report.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Landmark != "" {
		query += fmt.Sprintf(` AND landmark = $%d`, argIdx)
		args = append(args, filter.Landmark)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, filter.limit())
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list results")
	}
	defer rows.Close()

	var out []report.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate results")
}
