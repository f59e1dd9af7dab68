package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// localCache is a size-bounded LRU whose entries also expire.
type localCache struct {
	config LocalConfig
	lru    *expirable.LRU[string, entry]
}

func NewLocalCache(config LocalConfig) Cache {
	config = config.withDefaults()
	return &localCache{
		config: config,
		lru:    expirable.NewLRU[string, entry](config.MaxSize, nil, config.DefaultExpiration),
	}
}

func (lc *localCache) lookup(key string) (entry, bool) {
	e, ok := lc.lru.Get(key)
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		lc.lru.Remove(key)
		return entry{}, false
	}
	return e, true
}

func (lc *localCache) Get(_ context.Context, key string) ([]byte, bool) {
	e, ok := lc.lookup(key)
	return e.value, ok
}

func (lc *localCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	if expiration <= 0 || expiration > lc.config.DefaultExpiration {
		expiration = lc.config.DefaultExpiration
	}
	lc.lru.Add(key, entry{value: value, expiresAt: time.Now().Add(expiration)})
	return nil
}

func (lc *localCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		lc.lru.Remove(key)
	}
	return nil
}

func (lc *localCache) Exists(_ context.Context, key string) bool {
	_, ok := lc.lookup(key)
	return ok
}

func (lc *localCache) Clear(context.Context) error {
	lc.lru.Purge()
	return nil
}

func (lc *localCache) GetWithTTL(_ context.Context, key string) ([]byte, time.Duration, bool) {
	e, ok := lc.lookup(key)
	if !ok {
		return nil, 0, false
	}
	return e.value, remaining(e.expiresAt), true
}

func (lc *localCache) Close() error { return nil }

// Len reports the live entries.
func (lc *localCache) Len() int { return lc.lru.Len() }
