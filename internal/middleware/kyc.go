package middleware

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"smartbank/internal/models"
)

type KycLookup interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
}

// RequireKYC blocks users whose identity has not been verified. When
// enabled is false it passes every request through.
func RequireKYC(users KycLookup, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			user, err := users.GetByID(r.Context(), userID)
			if errors.Is(err, sql.ErrNoRows) {
				writeError(w, http.StatusUnauthorized, "unauthorized", "unknown user")
				return
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal_error", "unable to verify identity")
				return
			}
			if user.KycStatus != models.KycStatusVerified {
				writeError(w, http.StatusForbidden, "kyc_required", "identity verification is required for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
