// Package cache provides byte-oriented caches with local, go-cache, redis and
// layered backends, plus JSON helpers for typed values.
package cache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Cache stores opaque values with an optional expiration. A zero expiration
// means the backend default.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) bool
	Clear(ctx context.Context) error
	// GetWithTTL also reports the remaining lifetime; zero means no expiry.
	GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool)
	Close() error
}

type Config struct {
	// Type is local, gocache, redis or layered (local in front of redis).
	Type  string `env:"CACHE_TYPE"`
	Redis RedisConfig
	Local LocalConfig
}

type RedisConfig struct {
	Addr         string        `env:"REDIS_ADDR"`
	Password     string        `env:"REDIS_PASSWORD"`
	DB           int           `env:"REDIS_DB"`
	PoolSize     int           `env:"REDIS_POOL_SIZE"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT"`
	PoolTimeout  time.Duration `env:"REDIS_POOL_TIMEOUT"`
	// Prefix namespaces every key.
	Prefix string `env:"REDIS_PREFIX"`
}

type LocalConfig struct {
	MaxSize int `env:"LOCAL_CACHE_MAX_SIZE"`
	// DefaultExpiration also caps per-entry expirations of the LRU backend.
	DefaultExpiration time.Duration `env:"LOCAL_CACHE_DEFAULT_EXPIRATION"`
	CleanupInterval   time.Duration `env:"LOCAL_CACHE_CLEANUP_INTERVAL"`
}

func (c LocalConfig) withDefaults() LocalConfig {
	if c.MaxSize <= 0 {
		c.MaxSize = 1000
	}
	if c.DefaultExpiration <= 0 {
		c.DefaultExpiration = 5 * time.Minute
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 10 * time.Minute
	}
	return c
}

// GetJSON decodes the cached value of key into T.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var out T
	raw, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		_ = c.Delete(ctx, key)
		return out, false
	}
	return out, true
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, expiration time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, raw, expiration)
}

func remaining(exp time.Time) time.Duration {
	if exp.IsZero() {
		return 0
	}
	if ttl := time.Until(exp); ttl > 0 {
		return ttl
	}
	return 0
}
