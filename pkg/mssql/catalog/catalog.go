// Package catalog inspects SQL Server system views and assembles the
// metadata the REST engine needs per exposed object: columns in declared
// order, primary key, identity column, and enabled-trigger state. All
// queries are read-only and bind schema/object names as parameters.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindTable Kind = "TABLE"
	KindView  Kind = "VIEW"
)

// Column describes one catalog column.
type Column struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	IsNullable bool   `json:"is_nullable"`
	// MaxLength is the declared character length, 0 when not applicable
	// or unbounded (max).
	MaxLength int `json:"max_length,omitempty"`
}

// Object is one discovered table or view.
type Object struct {
	Schema            string   `json:"schema"`
	Name              string   `json:"name"`
	Kind              Kind     `json:"kind"`
	Columns           []Column `json:"columns"`
	PrimaryKey        []string `json:"primary_key,omitempty"`
	IdentityColumn    string   `json:"identity_column,omitempty"`
	HasEnabledTrigger bool     `json:"has_enabled_trigger,omitempty"`
}

// FullName returns schema-qualified identity, e.g. "dbo.Employees".
func (o *Object) FullName() string {
	return fmt.Sprintf("%s.%s", o.Schema, o.Name)
}

// Mutable reports whether mutation routes apply at all: views never
// mutate through this engine.
func (o *Object) Mutable() bool {
	return o.Kind == KindTable
}

// KeyColumn returns the single addressable key column, or "" when the
// object has no key or a composite one. Composite keys are discovered but
// keyed routes are not installed for them.
func (o *Object) KeyColumn() string {
	if len(o.PrimaryKey) == 1 {
		return o.PrimaryKey[0]
	}
	return ""
}

// HasColumn reports whether name matches a discovered column. SQL Server
// default collations are case-insensitive, so the lookup is too.
func (o *Object) HasColumn(name string) bool {
	for _, c := range o.Columns {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// ColumnNamed returns the column matching name, case-insensitively.
func (o *Object) ColumnNamed(name string) (Column, bool) {
	for _, c := range o.Columns {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// LikePattern converts the configured regex-like filter into a SQL LIKE
// pattern: a leading ^ and trailing $ anchor are stripped, everything else
// is taken literally, and a trailing % turns it into a prefix match.
// "^MI" becomes "MI%". An empty filter matches everything.
func LikePattern(filter string) string {
	p := strings.TrimPrefix(filter, "^")
	p = strings.TrimSuffix(p, "$")
	return p + "%"
}

// DiscoverObjects lists tables and views whose name matches the filter.
func DiscoverObjects(ctx context.Context, db *sql.DB, filter string) ([]Object, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.name, o.name, o.type
		FROM sys.objects o
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE o.type IN ('U', 'V') AND o.name LIKE @p1
		ORDER BY s.name, o.name`, LikePattern(filter))
	if err != nil {
		return nil, fmt.Errorf("query objects: %w", err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		var obj Object
		var objType string
		if err := rows.Scan(&obj.Schema, &obj.Name, &objType); err != nil {
			return nil, fmt.Errorf("scan object row: %w", err)
		}
		if strings.TrimSpace(objType) == "V" {
			obj.Kind = KindView
		} else {
			obj.Kind = KindTable
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}

// GetColumns returns the object's columns ordered by declaration position.
func GetColumns(ctx context.Context, db *sql.DB, schema, name string) ([]Column, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, CHARACTER_MAXIMUM_LENGTH
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query columns %s.%s: %w", schema, name, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var col Column
		var nullable string
		var maxLength sql.NullInt64
		if err := rows.Scan(&col.Name, &col.DataType, &nullable, &maxLength); err != nil {
			return nil, fmt.Errorf("scan column row: %w", err)
		}
		col.IsNullable = strings.EqualFold(nullable, "YES")
		if maxLength.Valid && maxLength.Int64 > 0 {
			col.MaxLength = int(maxLength.Int64)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// GetPrimaryKey returns the primary key column names in key order, empty
// when the object has none.
func GetPrimaryKey(ctx context.Context, db *sql.DB, schema, name string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT kcu.COLUMN_NAME
		FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME
			AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
		WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
			AND tc.TABLE_SCHEMA = @p1
			AND tc.TABLE_NAME = @p2
		ORDER BY kcu.ORDINAL_POSITION`, schema, name)
	if err != nil {
		return nil, fmt.Errorf("query primary key %s.%s: %w", schema, name, err)
	}
	defer rows.Close()

	var key []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan primary key row: %w", err)
		}
		key = append(key, col)
	}
	return key, rows.Err()
}

// GetIdentityColumn returns the identity column name, or "" when the table
// has none. SQL Server allows at most one identity column per table.
func GetIdentityColumn(ctx context.Context, db *sql.DB, schema, name string) (string, error) {
	var col string
	err := db.QueryRowContext(ctx, `
		SELECT c.name
		FROM sys.columns c
		JOIN sys.objects o ON c.object_id = o.object_id
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE s.name = @p1 AND o.name = @p2 AND c.is_identity = 1`, schema, name).Scan(&col)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query identity column %s.%s: %w", schema, name, err)
	}
	return col, nil
}

// HasEnabledTriggers reports whether at least one enabled DML trigger
// exists on the table. A single enabled trigger is enough to suppress
// OUTPUT-to-client on the whole table.
func HasEnabledTriggers(ctx context.Context, db *sql.DB, schema, name string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM sys.triggers tr
		JOIN sys.objects o ON tr.parent_id = o.object_id
		JOIN sys.schemas s ON o.schema_id = s.schema_id
		WHERE s.name = @p1 AND o.name = @p2 AND tr.is_disabled = 0`, schema, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query triggers %s.%s: %w", schema, name, err)
	}
	return count > 0, nil
}

// Inspect runs a full discovery pass: every matching object with its
// columns, key, identity column, and trigger state. Rerunning it against
// an unchanged schema yields a structurally equal result. Any failure
// propagates to the caller, which treats it like a connection failure.
func Inspect(ctx context.Context, db *sql.DB, filter string) ([]Object, error) {
	objects, err := DiscoverObjects(ctx, db, filter)
	if err != nil {
		return nil, err
	}

	for i := range objects {
		obj := &objects[i]

		if obj.Columns, err = GetColumns(ctx, db, obj.Schema, obj.Name); err != nil {
			return nil, err
		}
		if obj.PrimaryKey, err = GetPrimaryKey(ctx, db, obj.Schema, obj.Name); err != nil {
			return nil, err
		}

		// Views carry neither identity columns nor DML triggers in a way
		// that affects statement synthesis.
		if obj.Kind != KindTable {
			continue
		}
		if obj.IdentityColumn, err = GetIdentityColumn(ctx, db, obj.Schema, obj.Name); err != nil {
			return nil, err
		}
		if obj.HasEnabledTrigger, err = HasEnabledTriggers(ctx, db, obj.Schema, obj.Name); err != nil {
			return nil, err
		}
	}
	return objects, nil
}
