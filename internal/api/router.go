package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/IdentityService/internal/api/middleware"
	"github.com/honeynil/IdentityService/internal/api/respond"
	"github.com/honeynil/IdentityService/internal/config"
	"github.com/honeynil/IdentityService/internal/handler"
	"github.com/honeynil/IdentityService/internal/infrastructure/ratelimit"
	"github.com/honeynil/IdentityService/internal/models"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether one backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Handler *handler.Handler
	Tokens  middleware.TokenValidator
	Users   middleware.UserFinder
	Errors  *middleware.ErrorTranslator
	Limiter *ratelimit.Limiter
	CORS    config.CORSConfig
	Checks  map[string]HealthCheck
}

// SetupRouter builds the route table. CORS and rate limiting wrap the
// whole router; every route runs behind the error translator.
func SetupRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Metrics)

	h := d.Handler
	jwt := middleware.JWTAuth(d.Tokens, d.Users)
	authenticated := []middleware.Middleware{jwt}
	verified := []middleware.Middleware{jwt, middleware.RequireVerified()}
	admin := []middleware.Middleware{jwt, middleware.RequireVerified(), middleware.RequireRoles(string(models.RoleAdmin))}

	route := func(path string, fn middleware.Handler, mws []middleware.Middleware, methods ...string) {
		r.Handle(path, d.Errors.Wrap(middleware.Chain(fn, mws...))).Methods(methods...)
	}

	// Public
	route("/auth/register", h.Register, nil, http.MethodPost)
	route("/auth/login", h.Login, nil, http.MethodPost)
	route("/auth/refresh", h.Refresh, nil, http.MethodPost)
	route("/auth/verify-email", h.VerifyEmail, nil, http.MethodPost)
	route("/auth/resend-verification", h.ResendVerification, nil, http.MethodPost)
	route("/auth/forgot-password", h.ForgotPassword, nil, http.MethodPost)
	route("/auth/reset-password", h.ResetPassword, nil, http.MethodPost)

	// Authenticated
	route("/auth/logout", h.Logout, authenticated, http.MethodPost)
	route("/auth/me", h.Me, authenticated, http.MethodGet)

	// Authenticated and verified
	route("/profile", h.GetProfile, verified, http.MethodGet)
	route("/profile", h.UpdateProfile, verified, http.MethodPut)
	route("/profile", h.DeleteProfile, verified, http.MethodDelete)
	route("/profile/password", h.ChangePassword, verified, http.MethodPut)

	// Admin
	route("/admin/users", h.ListUsers, admin, http.MethodGet)
	route("/admin/users", h.CreateUser, admin, http.MethodPost)
	route("/admin/users/{id:[0-9]+}", h.GetUser, admin, http.MethodGet)
	route("/admin/users/{id:[0-9]+}", h.UpdateUser, admin, http.MethodPut)
	route("/admin/users/{id:[0-9]+}", h.DeleteUser, admin, http.MethodDelete)
	route("/admin/error-logs", h.ListErrorLogs, admin, http.MethodGet)
	route("/admin/error-logs/{id:[0-9]+}", h.GetErrorLog, admin, http.MethodGet)
	route("/admin/error-logs/{id:[0-9]+}", h.DeleteErrorLog, admin, http.MethodDelete)

	r.Handle("/health", health(d.Checks)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.NotFoundHandler = d.Errors.Wrap(func(w http.ResponseWriter, r *http.Request) error {
		return pkgerrors.NewNotFound("Route not found", nil)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respond.Error(w, http.StatusMethodNotAllowed, "Method not allowed", nil)
	})

	return middleware.CORS(d.CORS)(middleware.RateLimit(d.Limiter)(r))
}

func health(checks map[string]HealthCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			respond.Error(w, http.StatusServiceUnavailable, "Unhealthy", map[string]interface{}{"checks": failed})
			return
		}
		respond.Success(w, http.StatusOK, "OK", nil)
	})
}
