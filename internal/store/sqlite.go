package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/openbuildings-cli/internal/report"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS results (
	id               TEXT PRIMARY KEY,
	landmark         TEXT NOT NULL,
	landmark_lat     REAL NOT NULL,
	landmark_lon     REAL NOT NULL,
	latitude         REAL NOT NULL,
	longitude        REAL NOT NULL,
	area_in_meters   REAL,
	confidence       REAL,
	plus_code        TEXT NOT NULL,
	record_index     INTEGER NOT NULL,
	source_row       INTEGER NOT NULL DEFAULT 0,
	distance_degrees REAL NOT NULL,
	distance_meters  REAL NOT NULL,
	s2_token         TEXT NOT NULL,
	dataset          TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_results_landmark ON results(landmark);
CREATE INDEX IF NOT EXISTS idx_results_created_at ON results(created_at);
`

// Migrate creates the results table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveResult inserts r.
func (s *SQLiteStore) SaveResult(ctx context.Context, r report.Result) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		resultArgs(r)...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert result %s", r.ID)
	}
	return nil
}

// ListResults returns saved results, newest first.
func (s *SQLiteStore) ListResults(ctx context.Context, filter ResultFilter) ([]report.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE 1=1`
	var args []any

	if filter.Landmark != "" {
		query += ` AND landmark = ?`
		args = append(args, filter.Landmark)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, filter.limit())

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list results")
	}
	defer rows.Close() //nolint:errcheck

	var out []report.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan result")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate results")
}
