package rest

import (
	"net/http"
	"strconv"
	"strings"
)

// unboundedLimit is the sentinel for "no limit requested".
const unboundedLimit = -1

// ListParams holds a normalized list request: per-column equality filters,
// one optional sort column, and pagination. Filter keys are taken as-is
// from the query string; the SQL builder drops any that name unknown
// columns rather than reflecting them into statement text.
type ListParams struct {
	Filters   map[string]string
	OrderBy   string
	OrderDesc bool
	Limit     int
	Offset    int
}

// parseListParams extracts list parameters from the request query string.
func parseListParams(r *http.Request) ListParams {
	params := ListParams{
		Filters: make(map[string]string),
		Limit:   unboundedLimit,
	}

	queryValues := r.URL.Query()

	if order := queryValues.Get("order"); order != "" {
		params.OrderBy, params.OrderDesc = parseOrderParam(order)
	}

	if limit := queryValues.Get("limit"); limit != "" {
		params.Limit = parseIntParam(limit, unboundedLimit)
		if params.Limit < 0 {
			params.Limit = unboundedLimit
		}
	}

	if offset := queryValues.Get("offset"); offset != "" {
		params.Offset = parseIntParam(offset, 0)
		if params.Offset < 0 {
			params.Offset = 0
		}
	}

	// Everything else is a column equality filter.
	for key, values := range queryValues {
		if isReservedParam(key) {
			continue
		}
		if len(values) > 0 {
			params.Filters[key] = values[0]
		}
	}

	return params
}

// parseOrderParam parses "column", "column.asc" or "column.desc".
func parseOrderParam(order string) (column string, desc bool) {
	order = strings.TrimSpace(order)
	if strings.HasSuffix(order, ".desc") {
		return strings.TrimSuffix(order, ".desc"), true
	}
	return strings.TrimSuffix(order, ".asc"), false
}

func parseIntParam(value string, defaultValue int) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return result
}

func isReservedParam(name string) bool {
	switch name {
	case "order", "limit", "offset":
		return true
	}
	return false
}
