package rest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sqlrest/sqlrest/pkg/mssql/catalog"
)

// Binding is the parameter-binding class a column's values go through.
type Binding int

const (
	BindText Binding = iota
	BindInt32
	BindInt64
	BindBool
	BindDecimal
	BindFloat
	BindDateTime
)

// Fixed-point bindings use a single precision for every decimal/numeric
// column; per-column precision is not carried through the catalog.
const (
	decimalPrecision = 18
	decimalScale     = 4
)

// TypeMapping pairs a column's binding class with its document schema.
type TypeMapping struct {
	Binding   Binding
	MaxLength int    // bounded text length, 0 = unbounded
	JSONType  string // OpenAPI type
	Format    string // OpenAPI format hint, optional
}

// MapColumn translates a catalog column into its binding and document
// types. Matching is case-insensitive on the base type name, first match
// wins, and unknown types always fall through to unbounded text.
func MapColumn(col catalog.Column) TypeMapping {
	t := strings.ToLower(col.DataType)

	switch {
	case strings.Contains(t, "char"), strings.Contains(t, "text"):
		return TypeMapping{Binding: BindText, MaxLength: col.MaxLength, JSONType: "string"}
	case t == "bigint":
		return TypeMapping{Binding: BindInt64, JSONType: "integer", Format: "int64"}
	case strings.Contains(t, "int"):
		return TypeMapping{Binding: BindInt32, JSONType: "integer"}
	case t == "bit":
		return TypeMapping{Binding: BindBool, JSONType: "boolean"}
	case strings.Contains(t, "decimal"), strings.Contains(t, "numeric"):
		return TypeMapping{Binding: BindDecimal, JSONType: "number"}
	case strings.Contains(t, "float"), strings.Contains(t, "real"):
		return TypeMapping{Binding: BindFloat, JSONType: "number"}
	case strings.Contains(t, "date"), strings.Contains(t, "time"):
		return TypeMapping{Binding: BindDateTime, JSONType: "string", Format: "date-time"}
	case t == "uniqueidentifier":
		return TypeMapping{Binding: BindText, MaxLength: 50, JSONType: "string"}
	default:
		return TypeMapping{Binding: BindText, JSONType: "string"}
	}
}

// BindValue converts a request-supplied literal (path key or query filter)
// into a driver-bindable value for the column's binding class.
func (m TypeMapping) BindValue(raw string) (any, error) {
	switch m.Binding {
	case BindInt32:
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", raw, err)
		}
		return int64(v), nil
	case BindInt64:
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", raw, err)
		}
		return v, nil
	case BindBool:
		switch strings.ToLower(raw) {
		case "true", "1":
			return true, nil
		case "false", "0":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", raw)
	case BindDecimal, BindFloat:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", raw, err)
		}
		return v, nil
	default:
		// Date-time and text literals bind as text; the server coerces
		// them against the column's type on comparison.
		return raw, nil
	}
}

// SQLType renders a column definition type usable in staging-holder DDL,
// derived from the same mapping rules as binding.
func SQLType(col catalog.Column) string {
	m := MapColumn(col)
	switch m.Binding {
	case BindText:
		base := strings.ToLower(col.DataType)
		if base != "uniqueidentifier" && !strings.Contains(base, "char") && !strings.Contains(base, "text") {
			base = "nvarchar"
		}
		if base == "uniqueidentifier" {
			return base
		}
		if strings.Contains(base, "text") {
			return base
		}
		if m.MaxLength > 0 {
			return fmt.Sprintf("%s(%d)", base, m.MaxLength)
		}
		return base + "(max)"
	case BindDecimal:
		return fmt.Sprintf("decimal(%d,%d)", decimalPrecision, decimalScale)
	default:
		return strings.ToLower(col.DataType)
	}
}

// DocumentSchema renders the column's OpenAPI property schema.
func (m TypeMapping) DocumentSchema() map[string]any {
	schema := map[string]any{"type": m.JSONType}
	if m.Format != "" {
		schema["format"] = m.Format
	}
	if m.Binding == BindText && m.MaxLength > 0 {
		schema["maxLength"] = m.MaxLength
	}
	return schema
}
