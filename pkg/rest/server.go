package rest

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sqlrest/sqlrest/pkg/httputil"
	"github.com/sqlrest/sqlrest/pkg/metrics"
)

// Server dispatches requests to registered objects. Routes are resolved
// per request from the shared registry rather than installed as static mux
// patterns, so re-discovery replaces an object's behavior atomically
// instead of stacking handlers, and routes appear the moment a target's
// supervisor merges its discovery pass.
type Server struct {
	mux        *http.ServeMux
	server     *http.Server
	registry   *Registry
	docs       *DocumentBuilder
	baseURL    string
	logger     *zap.Logger
	middleware []httputil.Middleware
}

// NewServer creates a server over the shared registry and document builder.
func NewServer(registry *Registry, docs *DocumentBuilder, baseURL string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:      mux,
		server:   &http.Server{ReadHeaderTimeout: 3 * time.Second},
		registry: registry,
		docs:     docs,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger,
	}
	mux.HandleFunc("/", s.handleRequest)
	return s
}

// AddMiddleware appends middleware; applied outermost-first in the order
// added.
func (s *Server) AddMiddleware(mw ...httputil.Middleware) {
	s.middleware = append(s.middleware, mw...)
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	var handler http.Handler = s.mux
	for i := len(s.middleware) - 1; i >= 0; i-- {
		handler = s.middleware[i](handler)
	}
	return handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	s.server.Addr = addr
	s.server.Handler = s.Handler()
	s.logger.Info("server starting", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, s.baseURL)

	// Root and the explicit document path serve the API description.
	if path == "" || path == "/" || path == "/openapi.json" {
		if r.Method != http.MethodGet {
			httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.docs.ServeHTTP(w, r)
		return
	}

	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}
	target, name := parts[0], parts[1]
	var key string
	if len(parts) == 3 {
		key = parts[2]
	}

	ro, ok := s.registry.Lookup(target, name)
	if !ok {
		httputil.Error(w, http.StatusNotFound, fmt.Sprintf("object %s/%s not found", target, name))
		return
	}

	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.dispatch(rec, r, &ro, key)

	metrics.RequestsTotal.WithLabelValues(ro.Target, ro.Object.Name, statusClass(rec.status)).Inc()
	metrics.RequestDuration.WithLabelValues(ro.Target, ro.Object.Name).Observe(time.Since(start).Seconds())
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, ro *RegisteredObject, key string) {
	switch r.Method {
	case http.MethodGet:
		if key == "" {
			s.handleList(w, r, ro)
			return
		}
		if !keyed(ro) {
			httputil.Error(w, http.StatusNotFound, "not found")
			return
		}
		s.handleGet(w, r, ro, key)

	case http.MethodPost:
		if key != "" || !ro.Object.Mutable() {
			httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleCreate(w, r, ro)

	case http.MethodPut:
		if key == "" || !keyed(ro) {
			httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleUpdate(w, r, ro, key)

	case http.MethodDelete:
		if key == "" || !keyed(ro) {
			httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleDelete(w, r, ro, key)

	default:
		httputil.Error(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request, ro *RegisteredObject) {
	params := parseListParams(r)

	// limit=0 asks for zero rows; FETCH NEXT 0 is not valid T-SQL, so
	// answer without a round trip.
	if params.Limit == 0 {
		httputil.JSON(w, http.StatusOK, []map[string]any{})
		return
	}

	query, args, err := buildListQuery(&ro.Object, params)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := ro.Exec.Query(r.Context(), query, args...)
	if err != nil {
		s.execError(w, ro, err)
		return
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	httputil.JSON(w, http.StatusOK, rows)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request, ro *RegisteredObject, key string) {
	query, args, err := buildGetQuery(&ro.Object, key)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := ro.Exec.Query(r.Context(), query, args...)
	if err != nil {
		s.execError(w, ro, err)
		return
	}
	if len(rows) == 0 {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}
	httputil.JSON(w, http.StatusOK, rows[0])
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, ro *RegisteredObject) {
	var data map[string]any
	if err := httputil.BindOrError(r, w, &data); err != nil {
		return
	}

	query, args, err := buildInsertQuery(&ro.Object, data, ro.Plan.Insert)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := ro.Exec.Query(r.Context(), query, args...)
	if err != nil {
		s.execError(w, ro, err)
		return
	}
	if len(rows) == 0 {
		httputil.JSON(w, http.StatusCreated, map[string]any{})
		return
	}
	httputil.JSON(w, http.StatusCreated, rows[0])
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, ro *RegisteredObject, key string) {
	var data map[string]any
	if err := httputil.BindOrError(r, w, &data); err != nil {
		return
	}

	// Rejected before any statement reaches the database.
	query, args, err := buildUpdateQuery(&ro.Object, key, data, ro.Plan.Update)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := ro.Exec.Query(r.Context(), query, args...)
	if err != nil {
		s.execError(w, ro, err)
		return
	}
	if len(rows) == 0 {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}
	httputil.JSON(w, http.StatusOK, rows[0])
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, ro *RegisteredObject, key string) {
	query, args, err := buildDeleteQuery(&ro.Object, key, ro.Plan.Delete)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	rows, err := ro.Exec.Query(r.Context(), query, args...)
	if err != nil {
		s.execError(w, ro, err)
		return
	}
	if len(rows) == 0 {
		httputil.Error(w, http.StatusNotFound, "not found")
		return
	}
	httputil.JSON(w, http.StatusOK, rows[0])
}

// execError maps a statement execution failure to a 500 carrying the
// underlying driver message. Never retried.
func (s *Server) execError(w http.ResponseWriter, ro *RegisteredObject, err error) {
	s.logger.Error("execution failure",
		zap.String("target", ro.Target),
		zap.String("object", ro.Object.Name),
		zap.Error(err))
	httputil.Error(w, http.StatusInternalServerError, err.Error())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
