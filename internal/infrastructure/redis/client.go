package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	stderrors "errors"

	pkgerrors "github.com/honeynil/IdentityService/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var ErrKeyNotFound = stderrors.New("key not found")

// NoExpiry is returned by TTL for keys that exist without an expiration.
const NoExpiry time.Duration = -1

// RedisClient defines the key-value operations shared by the revocation
// store and the rate limiter. Every error other than ErrKeyNotFound wraps
// pkgerrors.ErrStoreUnavailable.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	GetDel(ctx context.Context, key string) (string, error)
	Incr(ctx context.Context, key string) (int64, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// Client is the implementation of RedisClient. Each call is bounded by
// the configured timeout.
type Client struct {
	client  *redis.Client
	timeout time.Duration
}

func NewClient(addr string, timeout time.Duration) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "addr", addr, "error", err)
		client.Close()
		return nil, fmt.Errorf("%w: %v", pkgerrors.ErrStoreUnavailable, err)
	}

	slog.Info("connected to Redis", "addr", addr)
	return Wrap(client, timeout), nil
}

// Wrap adapts an existing go-redis client.
func Wrap(client *redis.Client, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Client{client: client, timeout: timeout}
}

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", unavailable("get", key, err)
	}
	return val, nil
}

func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return unavailable("set", key, err)
	}
	return nil
}

// TTL returns the remaining lifetime of key, ErrKeyNotFound when the key is
// absent and NoExpiry when it never expires.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ttl, err := c.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("pttl", key, err)
	}
	switch ttl {
	case -2:
		return 0, ErrKeyNotFound
	case -1:
		return NoExpiry, nil
	}
	return ttl, nil
}

func (c *Client) GetDel(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	val, err := c.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", unavailable("getdel", key, err)
	}
	return val, nil
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, unavailable("incr", key, err)
	}
	return n, nil
}

func (c *Client) Del(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return unavailable("del", key, err)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", "", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func unavailable(op, key string, err error) error {
	slog.Error("redis operation failed", "op", op, "key", key, "error", err)
	return fmt.Errorf("%w: redis %s: %v", pkgerrors.ErrStoreUnavailable, op, err)
}
