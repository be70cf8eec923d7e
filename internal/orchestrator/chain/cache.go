package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const cacheKeyPrefix = "chain:"

// KV is the subset of the Redis client the cache needs
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	DeleteByPrefix(ctx context.Context, prefix string) (int64, error)
}

// Cache stores resolved chains in Redis
type Cache struct {
	kv  KV
	ttl time.Duration
}

// NewCache creates a new chain cache
func NewCache(kv KV, ttl time.Duration) *Cache {
	return &Cache{kv: kv, ttl: ttl}
}

func cacheKey(serviceType string) string {
	return cacheKeyPrefix + serviceType
}

// Get retrieves a cached chain
func (c *Cache) Get(ctx context.Context, serviceType string) ([]Entry, error) {
	val, err := c.kv.Get(ctx, cacheKey(serviceType))
	if err != nil {
		return nil, err
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(val), &entries); err != nil {
		return nil, fmt.Errorf("failed to deserialize cached chain: %w", err)
	}
	return entries, nil
}

// Set stores a chain in cache
func (c *Cache) Set(ctx context.Context, serviceType string, entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to serialize chain: %w", err)
	}
	return c.kv.Set(ctx, cacheKey(serviceType), string(data), c.ttl)
}

// Invalidate drops every cached chain
func (c *Cache) Invalidate(ctx context.Context) (int64, error) {
	return c.kv.DeleteByPrefix(ctx, cacheKeyPrefix)
}
