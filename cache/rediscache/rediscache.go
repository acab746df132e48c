// Package rediscache provides the Redis-backed cache implementation.
package rediscache

import (
	"context"
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

// Config for the Redis cache. Defaults load via envdecode.
type Config struct {
	// Enable gates cache construction entirely. ENV: REDIS_ENABLE
	Enable bool `env:"REDIS_ENABLE,default=false"`
	// Host of the Redis server. ENV: REDIS_HOST
	Host string `env:"REDIS_HOST,default=localhost"`
	// Port of the Redis server. ENV: REDIS_PORT
	Port int `env:"REDIS_PORT,default=6379"`
	// Password, empty for none. ENV: REDIS_PASSWORD
	Password string `env:"REDIS_PASSWORD,default="`
	// DB index. ENV: REDIS_DB
	DB int `env:"REDIS_DB,default=0"`
}

// DecodeConfig reads Config from the environment.
func DecodeConfig() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("rediscache: config: %w", err)
	}
	return cfg, nil
}

// Cache implements cache.Cache over a Redis client.
type Cache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection with a ping. A failed
// ping is returned to the caller; the pipelines then run uncached.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediscache: ping: %w", err)
	}
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client, primarily for tests.
func NewWithClient(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Get returns the value for key, or (nil, nil) when the key is absent or has
// expired.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rediscache: get %s: %w", key, err)
	}
	return val, nil
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.SetEx(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error { return c.client.Close() }
