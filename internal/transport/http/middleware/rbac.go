package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"permitflow/internal/transport/http/api"
)

type PermissionStore interface {
	HasPermission(ctx context.Context, role, permission string) (bool, error)
}

func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUser(r.Context()); !ok {
			api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", GetRequestID(r.Context()))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Can reports whether the request's user holds permission. Lookup errors
// are logged and deny.
func Can(r *http.Request, store PermissionStore, permission string) bool {
	user, ok := GetUser(r.Context())
	if !ok {
		return false
	}
	allowed, err := store.HasPermission(r.Context(), user.Role, permission)
	if err != nil {
		slog.Warn("permission check failed", "err", err, "role", user.Role, "permission", permission)
		return false
	}
	return allowed
}

// RequirePermission answers 401 without a user and a generic 403 when the
// role lacks permission.
func RequirePermission(permission string, store PermissionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Can(r, store, permission) {
				api.Fail(w, http.StatusForbidden, "forbidden", "not permitted", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		}))
	}
}
