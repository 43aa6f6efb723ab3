package middleware

import (
	"context"
	"net/http"

	"smartbank/internal/store"
)

const principalKey contextKey = "admin_principal"

// PrincipalFromContext returns the admin record RequireAdmin resolved.
func PrincipalFromContext(ctx context.Context) (store.Principal, bool) {
	principal, ok := ctx.Value(principalKey).(store.Principal)
	return principal, ok
}

type AdminStore interface {
	Lookup(ctx context.Context, userID string) (store.Principal, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// RequireAdmin lets admins through, and with a non-empty role only those
// holding it. Super admins hold every role.
func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			principal, err := adminStore.Lookup(r.Context(), userID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "unable to verify admin")
				return
			}
			if !principal.IsAdmin {
				writeError(w, http.StatusForbidden, "forbidden", "admin privileges required")
				return
			}
			r = r.WithContext(context.WithValue(r.Context(), principalKey, principal))
			if principal.IsSuper || role == "" {
				next.ServeHTTP(w, r)
				return
			}
			hasRole, err := adminStore.HasRole(r.Context(), userID, role)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "unable to verify role")
				return
			}
			if !hasRole {
				writeError(w, http.StatusForbidden, "forbidden", "missing required role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
