package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// DocumentInfo contains API metadata for the generated document.
type DocumentInfo struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

// DocumentBuilder derives an OpenAPI description of every currently
// registered object. The document is rebuilt wholesale from the registry
// snapshot (never patched incrementally) whenever the registered set
// changes, and served from cache otherwise. Targets connect at arbitrary
// times after startup, so the document starts empty and only ever grows.
type DocumentBuilder struct {
	registry *Registry
	baseURL  string
	info     DocumentInfo

	mu            sync.Mutex
	cached        map[string]any
	cachedVersion uint64
	built         bool
}

// NewDocumentBuilder creates a document builder over the shared registry.
func NewDocumentBuilder(registry *Registry, baseURL string, info DocumentInfo) *DocumentBuilder {
	return &DocumentBuilder{
		registry: registry,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		info:     info,
	}
}

// Current returns the document for the registry's current state,
// rebuilding synchronously when the registered set changed since the last
// build.
func (b *DocumentBuilder) Current() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	version := b.registry.Version()
	if !b.built || version != b.cachedVersion {
		b.cached = b.build()
		b.cachedVersion = version
		b.built = true
	}
	return b.cached
}

// Rebuild forces a synchronous rebuild; supervisors call it right after
// merging a discovery pass.
func (b *DocumentBuilder) Rebuild() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cached = b.build()
	b.cachedVersion = b.registry.Version()
	b.built = true
}

// ServeHTTP serves the current document as JSON.
func (b *DocumentBuilder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(b.Current())
}

func (b *DocumentBuilder) build() map[string]any {
	objects := b.registry.Snapshot()
	paths := make(map[string]any)
	schemas := make(map[string]any)

	for _, ro := range objects {
		basePath := fmt.Sprintf("/%s/%s", ro.Target, ro.Object.Name)
		paths[basePath] = b.buildCollectionOperations(ro)

		if keyed(&ro) {
			keyCol := ro.Object.KeyColumn()
			paths[basePath+"/{"+keyCol+"}"] = b.buildRecordOperations(ro)
		}

		schemas[schemaKey(ro)] = b.buildObjectSchema(ro)
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":       b.info.Title,
			"description": b.info.Description,
			"version":     b.info.Version,
		},
		"servers": []map[string]any{
			{"url": b.baseURL, "description": "API Server"},
		},
		"paths": paths,
		"components": map[string]any{
			"schemas": schemas,
		},
	}
}

// schemaKey names the object's component schema. Component keys admit
// only [A-Za-z0-9.-_]; a slash would also break JSON-Pointer resolution
// of every $ref pointing at the schema.
func schemaKey(ro RegisteredObject) string {
	return fmt.Sprintf("%s.%s", ro.Target, ro.Object.Name)
}

func schemaRef(ro RegisteredObject) map[string]string {
	return map[string]string{"$ref": fmt.Sprintf("#/components/schemas/%s", schemaKey(ro))}
}

func (b *DocumentBuilder) buildCollectionOperations(ro RegisteredObject) map[string]any {
	operations := map[string]any{
		"get": map[string]any{
			"summary":    fmt.Sprintf("List %s records", ro.Object.Name),
			"parameters": b.buildListParameters(ro),
			"responses": map[string]any{
				"200": map[string]any{
					"description": "Success",
					"content": map[string]any{
						"application/json": map[string]any{
							"schema": map[string]any{
								"type":  "array",
								"items": schemaRef(ro),
							},
						},
					},
				},
				"400": map[string]string{"description": "Bad Request"},
			},
			"tags": []string{ro.Target},
		},
	}

	if ro.Object.Mutable() {
		operations["post"] = map[string]any{
			"summary": fmt.Sprintf("Create %s record", ro.Object.Name),
			"requestBody": map[string]any{
				"content": map[string]any{
					"application/json": map[string]any{"schema": schemaRef(ro)},
				},
				"required": true,
			},
			"responses": map[string]any{
				"201": map[string]any{
					"description": "Created",
					"content": map[string]any{
						"application/json": map[string]any{"schema": schemaRef(ro)},
					},
				},
				"400": map[string]string{"description": "Bad Request"},
				"500": map[string]string{"description": "Internal Server Error"},
			},
			"tags": []string{ro.Target},
		}
	}

	return operations
}

func (b *DocumentBuilder) buildRecordOperations(ro RegisteredObject) map[string]any {
	keyParams := b.buildKeyParameters(ro)

	singleResponse := map[string]any{
		"description": "Success",
		"content": map[string]any{
			"application/json": map[string]any{"schema": schemaRef(ro)},
		},
	}

	return map[string]any{
		"get": map[string]any{
			"summary":    fmt.Sprintf("Get %s record", ro.Object.Name),
			"parameters": keyParams,
			"responses": map[string]any{
				"200": singleResponse,
				"404": map[string]string{"description": "Not Found"},
			},
			"tags": []string{ro.Target},
		},
		"put": map[string]any{
			"summary":    fmt.Sprintf("Update %s record", ro.Object.Name),
			"parameters": keyParams,
			"requestBody": map[string]any{
				"content": map[string]any{
					"application/json": map[string]any{"schema": schemaRef(ro)},
				},
				"required": true,
			},
			"responses": map[string]any{
				"200": singleResponse,
				"400": map[string]string{"description": "Bad Request"},
				"404": map[string]string{"description": "Not Found"},
			},
			"tags": []string{ro.Target},
		},
		"delete": map[string]any{
			"summary":    fmt.Sprintf("Delete %s record", ro.Object.Name),
			"parameters": keyParams,
			"responses": map[string]any{
				"200": singleResponse,
				"404": map[string]string{"description": "Not Found"},
			},
			"tags": []string{ro.Target},
		},
	}
}

func (b *DocumentBuilder) buildListParameters(ro RegisteredObject) []map[string]any {
	params := []map[string]any{
		{
			"name":        "limit",
			"in":          "query",
			"description": "Limit the number of returned records",
			"schema":      map[string]string{"type": "integer"},
		},
		{
			"name":        "offset",
			"in":          "query",
			"description": "Offset for pagination",
			"schema":      map[string]string{"type": "integer"},
		},
		{
			"name":        "order",
			"in":          "query",
			"description": "Order by column, e.g. order=Name.desc",
			"schema":      map[string]string{"type": "string"},
		},
	}

	for _, col := range ro.Object.Columns {
		params = append(params, map[string]any{
			"name":        col.Name,
			"in":          "query",
			"description": fmt.Sprintf("Filter by %s", col.Name),
			"schema":      MapColumn(col).DocumentSchema(),
		})
	}

	return params
}

func (b *DocumentBuilder) buildKeyParameters(ro RegisteredObject) []map[string]any {
	keyCol := ro.Object.KeyColumn()
	col, _ := ro.Object.ColumnNamed(keyCol)
	return []map[string]any{
		{
			"name":        keyCol,
			"in":          "path",
			"required":    true,
			"description": fmt.Sprintf("Primary key %s", keyCol),
			"schema":      MapColumn(col).DocumentSchema(),
		},
	}
}

func (b *DocumentBuilder) buildObjectSchema(ro RegisteredObject) map[string]any {
	properties := make(map[string]any, len(ro.Object.Columns))
	var required []string

	for _, col := range ro.Object.Columns {
		properties[col.Name] = MapColumn(col).DocumentSchema()
		// Identity values are server-assigned, so they are never required
		// of the caller.
		if !col.IsNullable && !strings.EqualFold(col.Name, ro.Object.IdentityColumn) {
			required = append(required, col.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// keyed reports whether record-level routes exist for the object: tables
// with exactly one primary-key column. Composite keys are discovered but
// deliberately not addressed by a path segment.
func keyed(ro *RegisteredObject) bool {
	return ro.Object.Mutable() && ro.Object.KeyColumn() != ""
}
