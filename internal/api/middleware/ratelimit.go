package middleware

import (
	"net/http"
	"strconv"

	"github.com/honeynil/IdentityService/internal/api/respond"
	"github.com/honeynil/IdentityService/internal/infrastructure/observability"
	"github.com/honeynil/IdentityService/internal/infrastructure/ratelimit"
)

// RateLimit throttles requests per identity. A store failure lets the
// request through and is logged; it never reaches the error translator.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || !limiter.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := limiter.Identity(r)
			scope := ratelimit.Scope(identity)

			decision, err := limiter.Allow(r.Context(), identity)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

			if err != nil {
				observability.WithContext(r.Context(), "identity", identity).
					Warn("rate limiter store unavailable, allowing request", "error", err)
				observability.RateLimitDecisions.WithLabelValues(scope, "store_error").Inc()
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				observability.RateLimitDecisions.WithLabelValues(scope, "denied").Inc()
				respond.JSON(w, http.StatusTooManyRequests, map[string]string{"error": "Too Many Requests"})
				return
			}
			observability.RateLimitDecisions.WithLabelValues(scope, "allowed").Inc()
			next.ServeHTTP(w, r)
		})
	}
}
