package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"favourites-api/internal/observability"
)

// Verifier decodes a bearer token into an identity.
type Verifier interface {
	Verify(token string) (Identity, error)
}

// IdentityChecker confirms a token's user still exists in the store.
type IdentityChecker interface {
	UserExists(ctx context.Context, userID string) (bool, error)
}

// Middleware rejects requests without a valid bearer token with 401 and
// otherwise runs next with the token identity in the request context.
// A nil checker trusts the signed claims; a non-nil one re-checks the store.
func Middleware(verifier Verifier, checker IdentityChecker, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization token")
			return
		}

		identity, err := verifier.Verify(tokenStr)
		if err != nil {
			if errors.Is(err, ErrExpired) {
				writeError(w, http.StatusUnauthorized, "token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if checker != nil {
			exists, err := checker.UserExists(r.Context(), identity.ID)
			if err != nil {
				observability.CaptureError(r.Context(), err)
				writeError(w, http.StatusUnprocessableEntity, "unable to verify user")
				return
			}
			if !exists {
				writeError(w, http.StatusUnauthorized, "unknown user")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}
