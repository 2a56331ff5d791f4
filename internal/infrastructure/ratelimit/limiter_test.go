package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/honeynil/IdentityService/internal/infrastructure/auth"
	infraredis "github.com/honeynil/IdentityService/internal/infrastructure/redis"
	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeParser struct {
	subjects map[string]string
}

func (f fakeParser) ValidateToken(token string) (*auth.Claims, error) {
	sub, ok := f.subjects[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &auth.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: sub}}, nil
}

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	parser := fakeParser{subjects: map[string]string{"good": "42"}}
	return New(infraredis.Wrap(rdb, time.Second), parser, cfg), mr
}

func TestLimiter_AllowsUpToMaxThenDenies(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Enabled: true, MaxRequests: 5, Window: 60 * time.Second})
	ctx := context.Background()

	for _, want := range []int{4, 3, 2, 1, 0} {
		d, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 5, d.Limit)
		assert.Equal(t, want, d.Remaining)
	}

	d, err := l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	v, err := mr.Get(keyPrefix + "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "5", v, "denied hits do not increment")

	mr.FastForward(61 * time.Second)
	d, err = l.Allow(ctx, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 4, d.Remaining)
	v, err = mr.Get(keyPrefix + "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestLimiter_IncrementPreservesRemainingWindow(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Enabled: true, MaxRequests: 10, Window: 60 * time.Second})
	ctx := context.Background()

	_, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	mr.FastForward(40 * time.Second)

	d, err := l.Allow(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	ttl := mr.TTL(keyPrefix + "user:1")
	assert.True(t, ttl <= 20*time.Second && ttl > 18*time.Second, "ttl=%v", ttl)
	assert.WithinDuration(t, time.Now().Add(20*time.Second), d.Reset, 2*time.Second)
}

func TestLimiter_IdentitiesAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Enabled: true, MaxRequests: 1, Window: time.Minute})
	ctx := context.Background()

	d, err := l.Allow(ctx, "ip:1.1.1.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(ctx, "ip:2.2.2.2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	d, err = l.Allow(ctx, "ip:1.1.1.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
}

func TestLimiter_StoreOutageFailsOpen(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Enabled: true, MaxRequests: 1, Window: time.Minute})
	mr.Close()

	d, err := l.Allow(context.Background(), "ip:1.1.1.1")
	assert.ErrorIs(t, err, pkgerrors.ErrStoreUnavailable)
	assert.True(t, d.Allowed)
}

func TestLimiter_Identity(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Enabled: true, MaxRequests: 1, Window: time.Minute})

	t.Run("forwarded for", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
		assert.Equal(t, "ip:9.9.9.9", l.Identity(r))
	})

	t.Run("remote addr", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "203.0.113.7:5555"
		assert.Equal(t, "ip:203.0.113.7", l.Identity(r))
	})

	t.Run("authenticated user ignores ip", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Forwarded-For", "9.9.9.9")
		r.Header.Set("Authorization", "Bearer good")
		assert.Equal(t, "user:42", l.Identity(r))
	})

	t.Run("broken token falls back to ip", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Forwarded-For", "9.9.9.9")
		r.Header.Set("Authorization", "Bearer broken")
		assert.Equal(t, "ip:9.9.9.9", l.Identity(r))
	})
}

func TestScope(t *testing.T) {
	assert.Equal(t, "user", Scope("user:42"))
	assert.Equal(t, "ip", Scope("ip:::1"))
}
