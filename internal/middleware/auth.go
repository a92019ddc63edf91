package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/waterhq/internal/allowlist"
	"github.com/dukerupert/waterhq/internal/auth"
	"github.com/dukerupert/waterhq/internal/identity"
)

// TokenVerifier checks a bearer token and returns its claims.
type TokenVerifier interface {
	Verify(token string) (identity.Identity, error)
}

// Authorizer decides whether a verified identity may use the API.
type Authorizer interface {
	Authorize(ctx context.Context, ident allowlist.Identity) (allowlist.Result, error)
}

// RequireBearer verifies the Authorization header and runs the allowlist
// gate. A missing or bad token is 401. A valid token without a verified
// email claim is 403, as is a caller outside the allowlist or a gate failure.
func RequireBearer(verifier TokenVerifier, gate Authorizer, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := identity.FromHeader(r.Header)
			if err != nil {
				deny(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			ident, err := verifier.Verify(token)
			if err != nil {
				logger.Debug("rejected token", "remote", RealIP(r), "error", err)
				deny(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			res, err := gate.Authorize(r.Context(), ident)
			switch {
			case errors.Is(err, allowlist.ErrMissingEmail):
				deny(w, http.StatusForbidden, "Token is missing an email")
				return
			case errors.Is(err, allowlist.ErrEmailUnverified):
				deny(w, http.StatusForbidden, "Email is not verified")
				return
			case err != nil:
				logger.Error("allowlist check failed", "subject", ident.Subject, "error", err)
				deny(w, http.StatusForbidden, "Forbidden")
				return
			case !res.Allowed:
				logger.Warn("caller not on allowlist", "subject", ident.Subject, "remote", RealIP(r))
				deny(w, http.StatusForbidden, "Forbidden")
				return
			}

			ctx := auth.WithAuth(r.Context(), auth.AuthContext{
				Subject:     ident.Subject,
				Email:       ident.Email,
				PhoneNumber: ident.PhoneNumber,
				Enrolled:    res.Enrolled,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func deny(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
