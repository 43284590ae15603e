package middleware

import (
	"log/slog"
	"net/http"

	"certflow/pkg/platform/secrets"
)

// RequireAdminToken guards administrative endpoints with a shared token
// verified against a bcrypt hash from configuration. An empty hash disables
// the guarded endpoints entirely.
func RequireAdminToken(tokenHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				w.WriteHeader(http.StatusNotFound)
				return
			}

			token := r.Header.Get("X-Admin-Token")
			if err := secrets.Verify(token, tokenHash); err != nil {
				logger.WarnContext(r.Context(), "admin token mismatch",
					"request_id", GetRequestID(r.Context()),
				)
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
