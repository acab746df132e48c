// Package memcache provides an in-memory cache backend with TTL support,
// suitable for single-process deployments and tests.
package memcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Cache implements cache.Cache over an LRU map. Expired entries are treated
// as misses and evicted on read.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache[string, entry]
	now func() time.Time
}

// New creates an in-memory cache holding at most maxItems entries.
func New(maxItems int) (*Cache, error) {
	l, err := lru.New[string, entry](maxItems)
	if err != nil {
		return nil, fmt.Errorf("memcache: %w", err)
	}
	return &Cache{lru: l, now: time.Now}, nil
}

// Get returns the value for key, or (nil, nil) on a miss or expiry.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	if c.now().After(e.expiresAt) {
		c.lru.Remove(key)
		return nil, nil
	}
	out := make([]byte, len(e.data))
	copy(out, e.data)
	return out, nil
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data := make([]byte, len(value))
	copy(data, value)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{data: data, expiresAt: c.now().Add(ttl)})
	return nil
}

// Close is a no-op for the in-memory backend.
func (c *Cache) Close() error { return nil }
