package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewCache builds the backend named by config.Type; empty means local.
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", "local":
		return NewLocalCache(config.Local), nil
	case "gocache":
		return NewGoCache(config.Local), nil
	case "redis":
		return NewRedisCache(config.Redis)
	case "layered":
		distributed, err := NewRedisCache(config.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis cache: %w", err)
		}
		return NewLayeredCache(NewLocalCache(config.Local), distributed, config.Local.withDefaults().DefaultExpiration), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// layeredCache reads through a short-lived local cache in front of a shared one.
type layeredCache struct {
	local       Cache
	distributed Cache
	localTTL    time.Duration
}

func NewLayeredCache(local, distributed Cache, localTTL time.Duration) Cache {
	return &layeredCache{local: local, distributed: distributed, localTTL: localTTL}
}

func (lc *layeredCache) Get(ctx context.Context, key string) ([]byte, bool) {
	if value, ok := lc.local.Get(ctx, key); ok {
		return value, true
	}
	if value, ok := lc.distributed.Get(ctx, key); ok {
		_ = lc.local.Set(ctx, key, value, lc.localTTL)
		return value, true
	}
	return nil, false
}

func (lc *layeredCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := lc.distributed.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	ttl := lc.localTTL
	if expiration > 0 && expiration < ttl {
		ttl = expiration
	}
	return lc.local.Set(ctx, key, value, ttl)
}

func (lc *layeredCache) Delete(ctx context.Context, keys ...string) error {
	if err := lc.local.Delete(ctx, keys...); err != nil {
		return err
	}
	return lc.distributed.Delete(ctx, keys...)
}

func (lc *layeredCache) Exists(ctx context.Context, key string) bool {
	return lc.local.Exists(ctx, key) || lc.distributed.Exists(ctx, key)
}

func (lc *layeredCache) Clear(ctx context.Context) error {
	if err := lc.local.Clear(ctx); err != nil {
		return err
	}
	return lc.distributed.Clear(ctx)
}

func (lc *layeredCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	if value, ttl, ok := lc.distributed.GetWithTTL(ctx, key); ok {
		return value, ttl, true
	}
	return nil, 0, false
}

func (lc *layeredCache) Close() error {
	if err := lc.local.Close(); err != nil {
		return err
	}
	return lc.distributed.Close()
}
