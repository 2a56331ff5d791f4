package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/honeynil/IdentityService/internal/infrastructure/auth"
	"github.com/honeynil/IdentityService/internal/infrastructure/ratelimit"
	infraredis "github.com/honeynil/IdentityService/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type subjectParser map[string]string

func (p subjectParser) ValidateToken(token string) (*auth.Claims, error) {
	sub, ok := p[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}, nil
}

func newLimiter(t *testing.T, cfg ratelimit.Config) (*ratelimit.Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return ratelimit.New(infraredis.Wrap(rdb, time.Second), subjectParser{"tok": "42"}, cfg), mr
}

func TestRateLimit_DeniesSixthRequest(t *testing.T) {
	limiter, _ := newLimiter(t, ratelimit.Config{Enabled: true, MaxRequests: 5, Window: time.Minute})
	calls := 0
	h := RateLimit(limiter)(countingHandler(&calls))

	hit := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, r)
		return rr
	}

	for _, want := range []string{"4", "3", "2", "1", "0"} {
		rr := hit()
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "5", rr.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, want, rr.Header().Get("X-RateLimit-Remaining"))
		reset, err := strconv.ParseInt(rr.Header().Get("X-RateLimit-Reset"), 10, 64)
		require.NoError(t, err)
		assert.InDelta(t, time.Now().Add(time.Minute).Unix(), reset, 2)
	}

	rr := hit()
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Too Many Requests", body["error"])
	assert.Equal(t, 5, calls)
}

func TestRateLimit_KeysOnUserWhenAuthenticated(t *testing.T) {
	limiter, mr := newLimiter(t, ratelimit.Config{Enabled: true, MaxRequests: 5, Window: time.Minute})
	calls := 0
	h := RateLimit(limiter)(countingHandler(&calls))

	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.Header.Set("X-Forwarded-For", "9.9.9.9")
	r.Header.Set("Authorization", "Bearer tok")
	h.ServeHTTP(httptest.NewRecorder(), r)

	assert.True(t, mr.Exists("ratelimit:user:42"))
	assert.False(t, mr.Exists("ratelimit:ip:9.9.9.9"))
}

func TestRateLimit_DisabledIsPassThrough(t *testing.T) {
	limiter, mr := newLimiter(t, ratelimit.Config{Enabled: false, MaxRequests: 1, Window: time.Minute})
	calls := 0
	h := RateLimit(limiter)(countingHandler(&calls))

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	}
	assert.Equal(t, 3, calls)
	assert.Empty(t, mr.Keys())
}

func TestRateLimit_StoreOutageFailsOpen(t *testing.T) {
	limiter, mr := newLimiter(t, ratelimit.Config{Enabled: true, MaxRequests: 1, Window: time.Minute})
	mr.Close()
	calls := 0
	h := RateLimit(limiter)(countingHandler(&calls))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rr.Header().Get("X-RateLimit-Reset"))
}
