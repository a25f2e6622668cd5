// Package admin guards operator-only routes with a shared API token.
package admin

import (
	"log/slog"
	"net/http"

	request "attestry/pkg/platform/middleware/request"
	"attestry/pkg/platform/secrets"
)

// RequireAdminToken compares the X-Admin-Token header against a bcrypt hash
// of the operator token. Comparison cost is constant with respect to the
// supplied token.
func RequireAdminToken(expectedHash string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if err := secrets.Verify(token, expectedHash); err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"admin token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
