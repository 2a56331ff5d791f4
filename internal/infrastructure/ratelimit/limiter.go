// Package ratelimit implements the fixed-bucket request counter used by
// the HTTP pipeline.
//
// A counter key is created with the full window as TTL on the first hit.
// Later hits rewrite the count with the key's remaining TTL, so the window
// is never extended by traffic inside it.
package ratelimit

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/honeynil/IdentityService/internal/infrastructure/auth"
	"github.com/honeynil/IdentityService/internal/infrastructure/redis"
)

const keyPrefix = "ratelimit:"

// Store is the subset of the key-value store the limiter needs.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// TokenParser resolves the subject of a bearer token.
type TokenParser interface {
	ValidateToken(token string) (*auth.Claims, error)
}

type Config struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
}

// Decision is the outcome of one hit.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

type Limiter struct {
	store  Store
	tokens TokenParser
	cfg    Config
	now    func() time.Time
}

func New(store Store, tokens TokenParser, cfg Config) *Limiter {
	return &Limiter{store: store, tokens: tokens, cfg: cfg, now: time.Now}
}

func (l *Limiter) Enabled() bool { return l.cfg.Enabled }

// Identity returns "user:<id>" for requests with a parseable bearer token
// and "ip:<addr>" otherwise. Token errors never surface here.
func (l *Limiter) Identity(r *http.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok && l.tokens != nil {
		if claims, err := l.tokens.ValidateToken(token); err == nil {
			if id, err := claims.UserID(); err == nil {
				return "user:" + strconv.FormatInt(id, 10)
			}
		}
	}
	return "ip:" + ClientIP(r)
}

// Allow records a hit for identity. On store failure the returned error is
// non-nil and the decision allows the request.
func (l *Limiter) Allow(ctx context.Context, identity string) (Decision, error) {
	limit := l.cfg.MaxRequests
	now := l.now()
	key := keyPrefix + identity

	raw, err := l.store.Get(ctx, key)
	if errors.Is(err, redis.ErrKeyNotFound) {
		if err := l.store.Set(ctx, key, 1, l.cfg.Window); err != nil {
			return l.failOpen(now), err
		}
		return Decision{Allowed: true, Limit: limit, Remaining: floor(limit - 1), Reset: now.Add(l.cfg.Window)}, nil
	}
	if err != nil {
		return l.failOpen(now), err
	}

	count, convErr := strconv.Atoi(raw)
	if convErr != nil {
		// Overwrite garbage with a fresh window.
		if err := l.store.Set(ctx, key, 1, l.cfg.Window); err != nil {
			return l.failOpen(now), err
		}
		return Decision{Allowed: true, Limit: limit, Remaining: floor(limit - 1), Reset: now.Add(l.cfg.Window)}, nil
	}

	ttl, err := l.store.TTL(ctx, key)
	if errors.Is(err, redis.ErrKeyNotFound) {
		// Expired between GET and TTL: this hit opens a new window.
		if err := l.store.Set(ctx, key, 1, l.cfg.Window); err != nil {
			return l.failOpen(now), err
		}
		return Decision{Allowed: true, Limit: limit, Remaining: floor(limit - 1), Reset: now.Add(l.cfg.Window)}, nil
	}
	if err != nil {
		return l.failOpen(now), err
	}
	ttl = l.normalizeTTL(ttl)

	if count >= limit {
		return Decision{Allowed: false, Limit: limit, Remaining: 0, Reset: now.Add(ttl)}, nil
	}

	if err := l.store.Set(ctx, key, count+1, ttl); err != nil {
		return l.failOpen(now), err
	}
	return Decision{Allowed: true, Limit: limit, Remaining: floor(limit - count - 1), Reset: now.Add(ttl)}, nil
}

// normalizeTTL keeps a counter from being rewritten without expiry.
func (l *Limiter) normalizeTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl == redis.NoExpiry || ttl < 0:
		return l.cfg.Window
	case ttl < time.Millisecond:
		return time.Millisecond
	}
	return ttl
}

func (l *Limiter) failOpen(now time.Time) Decision {
	return Decision{Allowed: true, Limit: l.cfg.MaxRequests, Remaining: l.cfg.MaxRequests, Reset: now.Add(l.cfg.Window)}
}

func floor(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// Scope returns the part of identity before the colon.
func Scope(identity string) string {
	scope, _, _ := strings.Cut(identity, ":")
	return scope
}

// ClientIP prefers the first X-Forwarded-For entry over the remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
