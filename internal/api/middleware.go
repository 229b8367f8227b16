/**
 * @description
 * This file provides the request-ID middleware for the HTTP layer. Every
 * request gets a correlation id: the caller's X-Request-ID header when
 * present, otherwise a freshly generated UUID. The id is stored in the
 * request context, echoed back on the response, and threaded into audit
 * entries and log lines.
 *
 * @dependencies
 * - github.com/google/uuid: Request-ID generation.
 */

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestIDHeader is the header used for request correlation.
const RequestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns each request a correlation id.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(RequestIDHeader))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFromContext returns the request's correlation id, or "" when the
// middleware did not run.
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}
