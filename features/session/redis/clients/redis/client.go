// Package redis hosts the Redis client used by the session store. Callers
// build a go-redis connection, pass it to New and receive a typed interface
// exposing only the operations the store needs.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"goa.design/clue/health"
)

const (
	defaultOpTimeout = 5 * time.Second
	clientName       = "session-redis"
)

type (
	// Client exposes Redis-backed operations for dialog snapshots.
	Client interface {
		health.Pinger

		// Set writes the value under key with the given TTL. A zero TTL
		// stores the value without expiry.
		Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
		// Get reads the value under key. ok is false when the key does not
		// exist.
		Get(ctx context.Context, key string) (value []byte, ok bool, err error)
		// Del removes the key. Deleting a missing key is not an error.
		Del(ctx context.Context, key string) error
	}

	// Options configures the Redis session client.
	Options struct {
		// Redis is the go-redis connection. Required.
		Redis *goredis.Client
		// Timeout bounds individual operations. Defaults to 5s.
		Timeout time.Duration
	}

	client struct {
		redis   *goredis.Client
		timeout time.Duration
	}
)

// New returns a Client backed by Redis.
func New(opts Options) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	return &client{redis: opts.Redis, timeout: timeout}, nil
}

func (c *client) Name() string { return clientName }

func (c *client) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.redis.Ping(ctx).Err()
}

func (c *client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	value, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (c *client) Del(ctx context.Context, key string) error {
	ctx, cancel := c.bound(ctx)
	defer cancel()
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

func (c *client) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}
