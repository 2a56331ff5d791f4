package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/honeynil/IdentityService/internal/infrastructure/auth"
	"github.com/honeynil/IdentityService/internal/models"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
)

type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (*auth.Claims, error)
}

type UserFinder interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// stale reports whether the token grants more than the stored user has:
// a role that changed or a verification that was withdrawn.
func stale(claims *auth.Claims, user *models.User) bool {
	if claims.Role != string(user.Role) {
		return true
	}
	return claims.IsVerified != nil && *claims.IsVerified && !user.Verified
}

// JWTAuth requires a valid, unrevoked access token and loads its user.
// Blocklist lookups that fail are returned unchanged so the translator
// answers 503 instead of letting the request through.
func JWTAuth(tokens TokenValidator, users UserFinder) Middleware {
	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				return pkgerrors.NewAuthentication(pkgerrors.AuthMissing, "Invalid Authorization header", nil)
			}

			claims, err := tokens.ValidateAccessToken(r.Context(), raw)
			if err != nil {
				return err
			}
			userID, err := claims.UserID()
			if err != nil {
				return pkgerrors.NewAuthentication(pkgerrors.AuthMalformed, "Invalid token", err)
			}

			user, err := users.GetByID(r.Context(), userID)
			if errors.Is(err, pkgerrors.ErrUserNotFound) {
				return pkgerrors.NewAuthentication(pkgerrors.AuthUser, "User not found", err)
			}
			if err != nil {
				return err
			}
			if !user.Active {
				return pkgerrors.NewAuthorization("Account is disabled")
			}
			if stale(claims, user) {
				return pkgerrors.NewAuthentication(pkgerrors.AuthRevoked, "Token has been revoked", nil)
			}

			ctx := WithAuth(r.Context(), &AuthContext{
				UserID:    userID,
				Email:     claims.Email,
				Role:      claims.Role,
				TokenID:   claims.ID,
				ExpiresAt: claims.ExpiresAtTime(),
				Verified:  claims.IsVerified,
				User:      user,
			})
			return next(w, r.WithContext(ctx))
		}
	}
}
