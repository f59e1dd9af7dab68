package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// goCacheWrapper adapts go-cache, which has per-key expiry but no size bound.
type goCacheWrapper struct {
	cache *gocache.Cache
}

func NewGoCache(config LocalConfig) Cache {
	config = config.withDefaults()
	return &goCacheWrapper{cache: gocache.New(config.DefaultExpiration, config.CleanupInterval)}
}

func (gc *goCacheWrapper) Get(_ context.Context, key string) ([]byte, bool) {
	if value, found := gc.cache.Get(key); found {
		return value.([]byte), true
	}
	return nil, false
}

func (gc *goCacheWrapper) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = gocache.DefaultExpiration
	}
	gc.cache.Set(key, value, expiration)
	return nil
}

func (gc *goCacheWrapper) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		gc.cache.Delete(key)
	}
	return nil
}

func (gc *goCacheWrapper) Exists(_ context.Context, key string) bool {
	_, found := gc.cache.Get(key)
	return found
}

func (gc *goCacheWrapper) Clear(context.Context) error {
	gc.cache.Flush()
	return nil
}

func (gc *goCacheWrapper) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, bool) {
	value, expiration, found := gc.cache.GetWithExpiration(key)
	if !found {
		return nil, 0, false
	}
	return value.([]byte), remaining(expiration), true
}

func (gc *goCacheWrapper) Close() error { return nil }

// ItemCount reports stored items, expired ones included until cleanup.
func (gc *goCacheWrapper) ItemCount() int {
	return gc.cache.ItemCount()
}
