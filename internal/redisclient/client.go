package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ClaimIdempotencyKey records key for ttl.
// Returns true when the key was free, false when another caller already holds it.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, idempotencyKey(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
}

// ReleaseIdempotencyKey frees a claimed key so the operation can be retried
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyKey(key)).Err()
}

// AcquireLock acquires a distributed lock and returns the owner token
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, lockName(lockKey), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock releases a distributed lock if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{lockName(lockKey)}, token).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release lock script failed: %w", err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("sgp:idempotency:%s", key)
}

func lockName(key string) string {
	return fmt.Sprintf("sgp:lock:%s", key)
}
