package gateway

import (
	"net/http"
	"strings"
	"time"

	"github.com/haldane/mediagate/internal/auth"
	"github.com/haldane/mediagate/internal/session"
	"github.com/rs/zerolog"
)

// AuthMiddleware rejects requests that lack a valid bearer token or
// arrive outside a live session. Token and session are independent
// gates: a valid token with an expired session is still a 401, and the
// caller is expected to lock and re-authenticate.
func AuthMiddleware(authService *auth.Service, guard *session.Guard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			if _, err := authService.ValidateToken(parts[1]); err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if !guard.IsValid() {
				writeError(w, http.StatusUnauthorized, "session expired")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// LoggingMiddleware logs HTTP requests.
func LoggingMiddleware(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("Gateway request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
