package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"
)

type contextKey string

const actorKey contextKey = "actor"

// headerAdminToken carries the shared admin secret on administrative routes.
const headerAdminToken = "X-Admin-Token"

// AdminOnly authenticates administrative requests against the configured
// token and places the acting identity into the request context. There is no
// process-wide session: every request carries its own authenticated context.
func AdminOnly(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(headerAdminToken)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, http.StatusUnauthorized, "admin authentication required")
				return
			}
			ctx := context.WithValue(r.Context(), actorKey, "admin")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Actor returns the authenticated identity for the request, or "anonymous".
func Actor(ctx context.Context) string {
	if actor, ok := ctx.Value(actorKey).(string); ok {
		return actor
	}
	return "anonymous"
}
