// Package mssql is the driver boundary: it owns connection establishment
// and parameterized statement execution against Microsoft SQL Server,
// exposing just enough surface for handlers (and test fakes) to run
// synthesized statements without touching database/sql directly.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/sqlrest/sqlrest/pkg/config"
)

// Executor executes one parameterized statement (or a batch synthesized as
// a unit) and returns the rows of its final result set as maps keyed by
// column name. Reselect and staging batches end in a SELECT, so the last
// non-empty result set is the row the caller asked for.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) ([]map[string]any, error)
}

// DB wraps *sql.DB with the Executor behavior.
type DB struct {
	*sql.DB
}

// ConnString builds a go-mssqldb connection string from a target config.
func ConnString(cfg config.Target) string {
	var b strings.Builder
	fmt.Fprintf(&b, "server=%s;port=%d;database=%s;user id=%s;password=%s",
		cfg.Host, cfg.Port, cfg.Database, cfg.User, cfg.Password)
	if cfg.Encrypt {
		b.WriteString(";encrypt=true")
	} else {
		b.WriteString(";encrypt=false")
	}
	return b.String()
}

// Connect opens a connection pool for the target and verifies it with a
// ping. A failed ping closes the pool and reports the error; the caller
// (connection supervisor) decides whether to retry.
func Connect(ctx context.Context, cfg config.Target) (*DB, error) {
	db, err := sql.Open("sqlserver", ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", cfg.Name, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %q: %w", cfg.Name, err)
	}

	return &DB{DB: db}, nil
}

// Query runs the statement and collects the last non-empty result set.
func (d *DB) Query(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []map[string]any
	for {
		set, err := scanResultSet(rows)
		if err != nil {
			return nil, err
		}
		if len(set) > 0 {
			result = set
		}
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanResultSet(rows *sql.Rows) ([]map[string]any, error) {
	columnNames, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var result []map[string]any
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePointers := make([]any, len(columnNames))
		for i := range values {
			valuePointers[i] = &values[i]
		}

		if err := rows.Scan(valuePointers...); err != nil {
			return nil, err
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, name := range columnNames {
			// []byte scans as raw bytes for character types on some
			// drivers; JSON encoding expects a string there.
			if b, ok := values[i].([]byte); ok {
				rowMap[name] = string(b)
			} else {
				rowMap[name] = values[i]
			}
		}
		result = append(result, rowMap)
	}
	return result, rows.Err()
}
