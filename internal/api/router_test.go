package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/honeynil/IdentityService/internal/api/middleware"
	"github.com/honeynil/IdentityService/internal/api/respond"
	"github.com/honeynil/IdentityService/internal/config"
	"github.com/honeynil/IdentityService/internal/handler"
	"github.com/honeynil/IdentityService/internal/infrastructure/auth"
	"github.com/honeynil/IdentityService/internal/infrastructure/ratelimit"
	infraredis "github.com/honeynil/IdentityService/internal/infrastructure/redis"
	"github.com/honeynil/IdentityService/internal/models"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type userTable map[int64]*models.User

func (u userTable) GetByID(_ context.Context, id int64) (*models.User, error) {
	if user, ok := u[id]; ok {
		return user, nil
	}
	return nil, pkgerrors.ErrUserNotFound
}

type routerFixture struct {
	handler http.Handler
	tokens  *auth.TokenService
	users   userTable
	mr      *miniredis.Miniredis
}

func newRouterFixture(t *testing.T, limit int) *routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	store := infraredis.Wrap(rdb, time.Second)

	codec, err := auth.NewCodec(auth.CodecConfig{
		Secret:     "router-test-secret-42",
		Algorithm:  "HS256",
		Issuer:     "identity-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: time.Hour,
	})
	require.NoError(t, err)
	tokens := auth.NewTokenService(codec, store)

	users := userTable{
		1: {ID: 1, Email: "admin@example.com", Role: models.RoleAdmin, Active: true, Verified: true},
		2: {ID: 2, Email: "user@example.com", Role: models.RoleUser, Active: true, Verified: true},
		3: {ID: 3, Email: "new@example.com", Role: models.RoleUser, Active: true, Verified: false},
	}

	h := SetupRouter(Deps{
		Handler: handler.NewHandler(nil, nil, nil),
		Tokens:  tokens,
		Users:   users,
		Errors:  middleware.NewErrorTranslator(nil, false),
		Limiter: ratelimit.New(store, tokens, ratelimit.Config{Enabled: limit > 0, MaxRequests: limit, Window: time.Minute}),
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"https://app.example.com"},
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         600,
		},
		Checks: map[string]HealthCheck{
			"redis": store.Ping,
		},
	})
	return &routerFixture{handler: h, tokens: tokens, users: users, mr: mr}
}

func (f *routerFixture) token(t *testing.T, u *models.User) string {
	t.Helper()
	tok, err := f.tokens.GenerateAccessToken(u.ID, u.Email, string(u.Role), u.Verified)
	require.NoError(t, err)
	return tok
}

func (f *routerFixture) do(method, path, token string) (*httptest.ResponseRecorder, respond.Envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	var env respond.Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestRouter_AuthGates(t *testing.T) {
	f := newRouterFixture(t, 0)
	admin := f.token(t, &models.User{ID: 1, Email: "admin@example.com", Role: models.RoleAdmin, Verified: true})
	user := f.token(t, &models.User{ID: 2, Email: "user@example.com", Role: models.RoleUser, Verified: true})
	unverified := f.token(t, &models.User{ID: 3, Email: "new@example.com", Role: models.RoleUser, Verified: false})
	ghost := f.token(t, &models.User{ID: 99, Role: models.RoleUser, Verified: true})

	cases := []struct {
		name    string
		method  string
		path    string
		token   string
		status  int
		message string
	}{
		{"no token", http.MethodGet, "/auth/me", "", http.StatusUnauthorized, "Invalid Authorization header"},
		{"garbage token", http.MethodGet, "/auth/me", "garbage", http.StatusUnauthorized, "Invalid token"},
		{"deleted user", http.MethodGet, "/auth/me", ghost, http.StatusUnauthorized, "User not found"},
		{"me", http.MethodGet, "/auth/me", unverified, http.StatusOK, "OK"},
		{"unverified profile", http.MethodGet, "/profile", unverified, http.StatusForbidden, "Email not verified. Please verify your email address"},
		{"non admin", http.MethodGet, "/admin/users", user, http.StatusForbidden, "Forbidden: insufficient permissions"},
		{"unknown route", http.MethodGet, "/nope", admin, http.StatusNotFound, "Route not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := f.do(tc.method, tc.path, tc.token)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.message, env.Message)
		})
	}
}

func TestRouter_LoggedOutTokenIsRejected(t *testing.T) {
	f := newRouterFixture(t, 0)
	tok := f.token(t, &models.User{ID: 2, Email: "user@example.com", Role: models.RoleUser, Verified: true})
	claims, err := f.tokens.ValidateToken(tok)
	require.NoError(t, err)

	rec, _ := f.do(http.MethodGet, "/auth/me", tok)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, f.tokens.BlockToken(context.Background(), claims.ID, claims.ExpiresAtTime()))
	rec, env := f.do(http.MethodGet, "/auth/me", tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token has been revoked", env.Message)
}

func TestRouter_DemotedAdminLosesAdminRoutes(t *testing.T) {
	f := newRouterFixture(t, 0)
	tok := f.token(t, f.users[1])

	f.users[1].Role = models.RoleUser
	require.NoError(t, f.tokens.InvalidateAllUserRefreshTokens(context.Background(), 1))

	rec, env := f.do(http.MethodGet, "/admin/users", tok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token has been revoked", env.Message)
}

func TestRouter_StoreOutageFailsClosed(t *testing.T) {
	f := newRouterFixture(t, 0)
	tok := f.token(t, &models.User{ID: 2, Email: "user@example.com", Role: models.RoleUser, Verified: true})
	f.mr.Close()

	rec, env := f.do(http.MethodGet, "/auth/me", tok)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Service temporarily unavailable", env.Message)
}

func TestRouter_RateLimitRunsBeforeAuth(t *testing.T) {
	f := newRouterFixture(t, 2)

	for i := 0; i < 2; i++ {
		rec, _ := f.do(http.MethodGet, "/auth/me", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec, _ := f.do(http.MethodGet, "/auth/me", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRouter_Preflight(t *testing.T) {
	f := newRouterFixture(t, 0)
	req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", rec.Header().Get("Access-Control-Max-Age"))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	f := newRouterFixture(t, 0)
	rec, env := f.do(http.MethodGet, "/auth/login", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, respond.StatusError, env.Status)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	f := newRouterFixture(t, 0)

	rec, env := f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, respond.StatusSuccess, env.Status)

	rec, _ = f.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	f.mr.Close()
	rec, env = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Unhealthy", env.Message)
}

func TestHealth_ReportsFailingCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	health(map[string]HealthCheck{
		"ok":   func(context.Context) error { return nil },
		"down": func(context.Context) error { return errors.New("connection refused") },
	}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"down":"connection refused"`)
	assert.NotContains(t, rec.Body.String(), `"ok"`)
}
