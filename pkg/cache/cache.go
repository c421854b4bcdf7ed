// Package cache wraps the optional external KV store used for LLM score
// results and uploaded image keys. A nil or unreachable server degrades to
// cache misses everywhere, the pipeline never depends on it.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/redis/go-redis/v9"
)

// Cache is a thin client over the KV store, safe to use when disabled
type Cache struct {
	client *redis.Client
	prefix string
}

// New connects to the KV store at url; an empty url returns a disabled cache.
// Connection failures are logged and also return a disabled cache.
func New(ctx context.Context, url, prefix string) *Cache {
	if url == "" {
		return &Cache{prefix: prefix}
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		lgr.Printf("[WARN] invalid cache url, caching disabled: %v", err)
		return &Cache{prefix: prefix}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		lgr.Printf("[WARN] cache unreachable, caching disabled: %v", err)
		_ = client.Close()
		return &Cache{prefix: prefix}
	}

	return &Cache{client: client, prefix: prefix}
}

// Enabled reports whether a live KV connection is present
func (c *Cache) Enabled() bool { return c != nil && c.client != nil }

// Get returns the cached value for key, ok=false on miss or disabled cache
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if !c.Enabled() {
		return "", false
	}
	val, err := c.client.Get(ctx, c.prefix+key).Result()
	if err != nil {
		if err != redis.Nil {
			lgr.Printf("[WARN] cache get failed for %s: %v", key, err)
		}
		return "", false
	}
	return val, true
}

// Set stores value under key with the given TTL, errors are logged and swallowed
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, value, ttl).Err(); err != nil {
		lgr.Printf("[WARN] cache set failed for %s: %v", key, err)
	}
}

// Close releases the underlying connection
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	if err := c.client.Close(); err != nil {
		return fmt.Errorf("close cache: %w", err)
	}
	return nil
}
