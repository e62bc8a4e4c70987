package rest

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sqlrest/sqlrest/pkg/mssql/catalog"
)

// Identifier interpolation rule: every identifier written into statement
// text (schema, object, column names) originates from catalog metadata,
// never from request input. Request input only ever reaches the server
// through @pN parameter binding.

func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func qualifiedName(obj *catalog.Object) string {
	return quoteIdent(obj.Schema) + "." + quoteIdent(obj.Name)
}

// payloadValue looks up a column's value in a request body,
// case-insensitively like the server's own column resolution.
func payloadValue(data map[string]any, column string) (any, bool) {
	for k, v := range data {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return nil, false
}

// buildListQuery synthesizes the list SELECT: AND-joined equality
// predicates over known columns (unknown filter names are dropped, never
// reflected into SQL), a deterministic ORDER BY, and OFFSET/FETCH only
// when pagination was explicitly requested.
func buildListQuery(obj *catalog.Object, params ListParams) (string, []any, error) {
	var query strings.Builder
	var args []any
	argIndex := 1

	query.WriteString("SELECT * FROM ")
	query.WriteString(qualifiedName(obj))

	var predicates []string
	// Iterate declared columns, not the filter map, so predicate order is
	// stable across requests.
	for _, col := range obj.Columns {
		raw, ok := filterValue(params.Filters, col.Name)
		if !ok {
			continue
		}
		val, err := MapColumn(col).BindValue(raw)
		if err != nil {
			return "", nil, fmt.Errorf("filter %s: %w", col.Name, err)
		}
		predicates = append(predicates, fmt.Sprintf("%s = @p%d", quoteIdent(col.Name), argIndex))
		args = append(args, val)
		argIndex++
	}
	if len(predicates) > 0 {
		query.WriteString(" WHERE ")
		query.WriteString(strings.Join(predicates, " AND "))
	}

	// ORDER BY is always emitted for determinism; OFFSET/FETCH requires
	// one anyway.
	orderCol := defaultOrderColumn(obj)
	orderDesc := false
	if params.OrderBy != "" && obj.HasColumn(params.OrderBy) {
		if c, ok := obj.ColumnNamed(params.OrderBy); ok {
			orderCol = c.Name
			orderDesc = params.OrderDesc
		}
	}
	query.WriteString(" ORDER BY ")
	query.WriteString(quoteIdent(orderCol))
	if orderDesc {
		query.WriteString(" DESC")
	} else {
		query.WriteString(" ASC")
	}

	// FETCH NEXT requires a count of at least 1; limit=0 is answered by
	// the handler before synthesis.
	if params.Limit > 0 || params.Offset > 0 {
		query.WriteString(fmt.Sprintf(" OFFSET @p%d ROWS", argIndex))
		args = append(args, params.Offset)
		argIndex++
		if params.Limit > 0 {
			query.WriteString(fmt.Sprintf(" FETCH NEXT @p%d ROWS ONLY", argIndex))
			args = append(args, params.Limit)
		}
	}

	return query.String(), args, nil
}

func filterValue(filters map[string]string, column string) (string, bool) {
	for k, v := range filters {
		if strings.EqualFold(k, column) {
			return v, true
		}
	}
	return "", false
}

// defaultOrderColumn is the primary key when one exists, else the first
// declared column.
func defaultOrderColumn(obj *catalog.Object) string {
	if len(obj.PrimaryKey) > 0 {
		return obj.PrimaryKey[0]
	}
	return obj.Columns[0].Name
}

// buildGetQuery synthesizes the get-by-key SELECT.
func buildGetQuery(obj *catalog.Object, key string) (string, []any, error) {
	keyCol, val, err := bindKey(obj, key)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = @p1",
		qualifiedName(obj), quoteIdent(keyCol))
	return query, []any{val}, nil
}

func bindKey(obj *catalog.Object, key string) (string, any, error) {
	keyCol := obj.KeyColumn()
	if keyCol == "" {
		return "", nil, fmt.Errorf("%s has no addressable key", obj.FullName())
	}
	col, _ := obj.ColumnNamed(keyCol)
	val, err := MapColumn(col).BindValue(key)
	if err != nil {
		return "", nil, fmt.Errorf("key %s: %w", keyCol, err)
	}
	return keyCol, val, nil
}

// buildInsertQuery synthesizes the insert statement for the object's
// resolved insert strategy. The identity column is never written even if
// supplied in the payload. A staging-resolved insert whose payload carries
// the primary key value takes the key-reselect branch instead.
func buildInsertQuery(obj *catalog.Object, data map[string]any, strategy Strategy) (string, []any, error) {
	var columns []string
	var placeholders []string
	var args []any
	argIndex := 1

	for _, col := range obj.Columns {
		if strings.EqualFold(col.Name, obj.IdentityColumn) {
			continue
		}
		val, ok := payloadValue(data, col.Name)
		if !ok {
			continue
		}
		columns = append(columns, quoteIdent(col.Name))
		placeholders = append(placeholders, fmt.Sprintf("@p%d", argIndex))
		args = append(args, val)
		argIndex++
	}

	if len(columns) == 0 {
		return "", nil, fmt.Errorf("no valid columns to insert")
	}

	insertCore := fmt.Sprintf("INSERT INTO %s (%s)", qualifiedName(obj), strings.Join(columns, ", "))
	valuesClause := fmt.Sprintf("VALUES (%s)", strings.Join(placeholders, ", "))

	keyCol := obj.KeyColumn()
	keyVal, hasKeyVal := any(nil), false
	if keyCol != "" {
		keyVal, hasKeyVal = payloadValue(data, keyCol)
	}
	if strategy == StrategyStaging && hasKeyVal {
		strategy = StrategyKeyReselect
	}

	switch strategy {
	case StrategyDirect:
		return fmt.Sprintf("%s OUTPUT INSERTED.* %s", insertCore, valuesClause), args, nil

	case StrategyIdentityReselect:
		// A trigger blocks OUTPUT on the statement itself, but
		// SCOPE_IDENTITY() still yields the freshly generated value.
		query := fmt.Sprintf("%s %s; SELECT * FROM %s WHERE %s = SCOPE_IDENTITY();",
			insertCore, valuesClause, qualifiedName(obj), quoteIdent(obj.IdentityColumn))
		return query, args, nil

	case StrategyKeyReselect:
		if !hasKeyVal {
			return "", nil, fmt.Errorf("key-reselect insert on %s without key value", obj.FullName())
		}
		query := fmt.Sprintf("%s %s; SELECT * FROM %s WHERE %s = @p%d;",
			insertCore, valuesClause, qualifiedName(obj), quoteIdent(keyCol), argIndex)
		args = append(args, keyVal)
		return query, args, nil

	case StrategyStaging:
		staging := stagingName("ins")
		query := fmt.Sprintf("%s %s OUTPUT INSERTED.* INTO %s %s; SELECT * FROM %s; DROP TABLE %s;",
			stagingDDL(obj, staging), insertCore, staging, valuesClause, staging, staging)
		return query, args, nil
	}

	return "", nil, fmt.Errorf("unsupported insert strategy %s", strategy)
}

// buildUpdateQuery synthesizes the keyed update. Identity and key columns
// are never part of the SET list. An update with zero remaining fields is
// rejected before any SQL is produced.
func buildUpdateQuery(obj *catalog.Object, key string, data map[string]any, strategy Strategy) (string, []any, error) {
	keyCol, keyVal, err := bindKey(obj, key)
	if err != nil {
		return "", nil, err
	}

	var setClauses []string
	var args []any
	argIndex := 1

	for _, col := range obj.Columns {
		if strings.EqualFold(col.Name, obj.IdentityColumn) || strings.EqualFold(col.Name, keyCol) {
			continue
		}
		val, ok := payloadValue(data, col.Name)
		if !ok {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = @p%d", quoteIdent(col.Name), argIndex))
		args = append(args, val)
		argIndex++
	}

	if len(setClauses) == 0 {
		return "", nil, fmt.Errorf("no valid columns to update")
	}

	updateCore := fmt.Sprintf("UPDATE %s SET %s", qualifiedName(obj), strings.Join(setClauses, ", "))

	switch strategy {
	case StrategyDirect:
		query := fmt.Sprintf("%s OUTPUT INSERTED.* WHERE %s = @p%d",
			updateCore, quoteIdent(keyCol), argIndex)
		args = append(args, keyVal)
		return query, args, nil

	case StrategyKeyReselect, StrategyIdentityReselect, StrategyStaging:
		// The addressed key is a usable reselect key for any trigger
		// table, so the write-then-select batch covers them all.
		query := fmt.Sprintf("%s WHERE %s = @p%d; SELECT * FROM %s WHERE %s = @p%d;",
			updateCore, quoteIdent(keyCol), argIndex,
			qualifiedName(obj), quoteIdent(keyCol), argIndex+1)
		args = append(args, keyVal, keyVal)
		return query, args, nil
	}

	return "", nil, fmt.Errorf("unsupported update strategy %s", strategy)
}

// buildDeleteQuery synthesizes the keyed delete. Trigger tables route the
// deleted row through a staging holder: once the row is gone there is
// nothing left to reselect.
func buildDeleteQuery(obj *catalog.Object, key string, strategy Strategy) (string, []any, error) {
	keyCol, keyVal, err := bindKey(obj, key)
	if err != nil {
		return "", nil, err
	}

	switch strategy {
	case StrategyDirect:
		query := fmt.Sprintf("DELETE FROM %s OUTPUT DELETED.* WHERE %s = @p1",
			qualifiedName(obj), quoteIdent(keyCol))
		return query, []any{keyVal}, nil

	case StrategyStaging, StrategyKeyReselect, StrategyIdentityReselect:
		staging := stagingName("del")
		query := fmt.Sprintf("%s DELETE FROM %s OUTPUT DELETED.* INTO %s WHERE %s = @p1; SELECT * FROM %s; DROP TABLE %s;",
			stagingDDL(obj, staging), qualifiedName(obj), staging, quoteIdent(keyCol), staging, staging)
		return query, []any{keyVal}, nil
	}

	return "", nil, fmt.Errorf("unsupported delete strategy %s", strategy)
}

// stagingName returns a session-temp table name unique to one execution,
// so concurrent requests never observe each other's staging holder.
func stagingName(op string) string {
	return fmt.Sprintf("#sqlrest_%s_%s", op, strings.ReplaceAll(uuid.New().String(), "-", ""))
}

// stagingDDL creates the staging holder shaped like the object's columns.
// The holder is built from explicit column definitions rather than SELECT
// INTO so it never inherits an identity property that would reject
// OUTPUT ... INTO writes.
func stagingDDL(obj *catalog.Object, name string) string {
	defs := make([]string, 0, len(obj.Columns))
	for _, col := range obj.Columns {
		defs = append(defs, fmt.Sprintf("%s %s NULL", quoteIdent(col.Name), SQLType(col)))
	}
	return fmt.Sprintf("CREATE TABLE %s (%s);", name, strings.Join(defs, ", "))
}
