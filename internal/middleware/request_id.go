package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey    contextKey = "requestID"
	RequestIDHeader string     = "X-Request-ID"
)

// RequestID tags every request with an id for log correlation. A
// client-supplied X-Request-ID wins so the dashboard can trace its own
// calls end to end; otherwise a fresh uuid is minted. The id is echoed
// back on the response and stashed in the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}

		w.Header().Set(RequestIDHeader, id)

		next.ServeHTTP(w, r.WithContext(
			context.WithValue(r.Context(), RequestIDKey, id)))
	})
}

// GetRequestID returns the request id stored by RequestID, or "" when
// the middleware did not run.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
