package middleware

import (
	"net/http"

	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
)

var errNoRolesConfigured = &pkgerrors.AuthorizationError{
	Message: "route has no allowed roles configured",
	Status:  http.StatusInternalServerError,
}

// RequireRoles admits callers whose token role is one of roles. A route
// registered with no roles is a deployment error and always answers 500.
func RequireRoles(roles ...string) Middleware {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next Handler) Handler {
		return func(w http.ResponseWriter, r *http.Request) error {
			if len(allowed) == 0 {
				return errNoRolesConfigured
			}
			ac, ok := AuthFromContext(r.Context())
			if !ok || ac.Role == "" {
				return pkgerrors.NewAuthorization("Forbidden: no role on request")
			}
			if _, ok := allowed[ac.Role]; !ok {
				return pkgerrors.NewAuthorization("Forbidden: insufficient permissions")
			}
			return next(w, r)
		}
	}
}
