package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/sqlrest/sqlrest/pkg/httputil"
)

// RequestIDHeader echoes the per-request correlation id back to the
// caller; the logger middleware reads the same id from the context.
const RequestIDHeader = "X-Request-Id"

// RequestID assigns each request a uuid unless its context already
// carries one, and sets it on the response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := r.Context().Value(httputil.RequestIDCtxKey).(string)
		if !ok || id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), httputil.RequestIDCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
