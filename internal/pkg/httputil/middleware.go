package httputil

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ckaraca/spotfound/internal/pkg/ctxlog"
)

type userIDKey struct{}

// UserIDHeader carries the authenticated user id, set by the upstream gateway.
const UserIDHeader = "X-User-ID"

// GetUserID returns the user id stored in the request context, or "".
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// UserIDMiddleware copies the gateway-provided user id header into the context.
// Authentication itself happens upstream; an empty id means an anonymous request.
func UserIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), userIDKey{}, r.Header.Get(UserIDHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireUserID rejects requests whose user id header is absent. Mount after
// UserIDMiddleware on routes that need an authenticated caller.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			Error(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLoggerMiddleware attaches a request-scoped logger to the context
// and logs each request on completion.
func RequestLoggerMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With(
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
			)

			ctx := ctxlog.WithLogger(r.Context(), reqLogger)
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("request completed",
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
			)
		})
	}
}
