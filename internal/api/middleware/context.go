// Package middleware holds the request pipeline: CORS and rate limiting
// wrap the whole router, the remaining stages are composed per route.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/honeynil/IdentityService/internal/models"
)

// Handler is an HTTP handler that reports failures instead of writing them.
// The ErrorTranslator turns the returned error into a response.
type Handler func(w http.ResponseWriter, r *http.Request) error

type Middleware func(Handler) Handler

// Chain wraps h so that mws[0] runs first.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// AuthContext is attached to the request by JWTAuth.
type AuthContext struct {
	UserID    int64
	Email     string
	Role      string
	TokenID   string
	ExpiresAt time.Time
	Verified  *bool
	User      *models.User
}

type contextKey int

const (
	authKey contextKey = iota
	stateKey
)

func WithAuth(ctx context.Context, ac *AuthContext) context.Context {
	if st, ok := ctx.Value(stateKey).(*requestState); ok {
		id := ac.UserID
		st.userID = &id
	}
	return context.WithValue(ctx, authKey, ac)
}

func AuthFromContext(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authKey).(*AuthContext)
	return ac, ok && ac != nil
}

// requestState is shared between the translator and the stages it wraps,
// so an error log can name the authenticated user.
type requestState struct {
	userID *int64
}
