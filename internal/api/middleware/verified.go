package middleware

import (
	"net/http"

	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
)

// RequireVerified only inspects requests JWTAuth has already authenticated.
func RequireVerified() Middleware {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			ac, ok := AuthFromContext(r.Context())
			if !ok {
				return next(w, r)
			}
			if ac.Verified == nil {
				return pkgerrors.NewAuthorization("Forbidden: token missing is_verified claim")
			}
			if !*ac.Verified {
				return pkgerrors.NewAuthorization("Email not verified. Please verify your email address")
			}
			return next(w, r)
		}
	}
}
