package redisclient

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/apperr"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

//go:embed scripts/release_lock.lua
var releaseLockScript string

//go:embed scripts/extend_lock.lua
var extendLockScript string

const catalogGenerationKey = "catalog:gen"

type Client struct {
	rdb           *redis.Client
	releaseScript *redis.Script
	extendScript  *redis.Script
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

	return NewWithRedis(rdb), nil
}

// NewWithRedis wraps an existing go-redis client
func NewWithRedis(rdb *redis.Client) *Client {
	return &Client{
		rdb:           rdb,
		releaseScript: redis.NewScript(releaseLockScript),
		extendScript:  redis.NewScript(extendLockScript),
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return apperr.Unavailable("redis ping", err)
	}
	return nil
}

// CatalogGeneration returns the current catalog cache generation. Cached
// pages are keyed by generation, so bumping it invalidates all of them.
func (c *Client) CatalogGeneration(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, catalogGenerationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, apperr.Unavailable("read catalog generation", err)
	}
	return gen, nil
}

// InvalidateCatalog starts a new cache generation
func (c *Client) InvalidateCatalog(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Incr(ctx, catalogGenerationKey).Result()
	if err != nil {
		return 0, apperr.Unavailable("bump catalog generation", err)
	}
	return gen, nil
}

// CatalogKey namespaces a cache entry under a generation
func CatalogKey(gen int64, kind, id string) string {
	return fmt.Sprintf("catalog:%d:%s:%s", gen, kind, id)
}

// GetJSON loads a cached value into dest. It reports false on a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Unavailable("cache get", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON caches value under key for ttl
func (c *Client) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return apperr.Unavailable("cache set", err)
	}
	return nil
}

// AcquireLock takes a distributed lock. The returned token proves ownership
// when releasing; an empty token means the lock is held elsewhere.
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), token, ttl).Result()
	if err != nil {
		return "", apperr.Unavailable("acquire lock", err)
	}
	if !ok {
		return "", nil
	}
	return token, nil
}

// ExtendLock pushes the expiry of a lock we still own
func (c *Client) ExtendLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error) {
	res, err := c.extendScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, apperr.Unavailable("extend lock", err)
	}
	return res == 1, nil
}

// ReleaseLock releases a lock only if token still owns it
func (c *Client) ReleaseLock(ctx context.Context, lockKey, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{fmt.Sprintf("lock:%s", lockKey)}, token).Result()
	if err != nil {
		return apperr.Unavailable("release lock", err)
	}
	return nil
}
