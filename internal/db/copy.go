package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using PostgreSQL COPY protocol.
// table may be schema-qualified ("public.buildings").
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// CopyFromFunc streams n rows produced by next into table without building
// the full row slice in memory.
func CopyFromFunc(ctx context.Context, pool Pool, table string, columns []string, n int, next func(i int) ([]any, error)) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	copied, err := pool.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromSlice(n, next))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return copied, nil
}

// Identifier splits an optionally schema-qualified table name.
func Identifier(table string) pgx.Identifier {
	parts := strings.SplitN(table, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{table}
}

// SanitizeTable quotes an optionally schema-qualified table name for SQL.
func SanitizeTable(table string) string {
	return Identifier(table).Sanitize()
}
