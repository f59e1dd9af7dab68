package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCache struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisCache connects and pings the server.
func NewRedisCache(config RedisConfig) (Cache, error) {
	if config.DialTimeout <= 0 {
		config.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisCache{client: client, config: config}, nil
}

func (rc *redisCache) key(k string) string { return rc.config.Prefix + k }

func (rc *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := rc.client.Get(ctx, rc.key(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

func (rc *redisCache) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	return rc.client.Set(ctx, rc.key(key), value, expiration).Err()
}

func (rc *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = rc.key(k)
	}
	return rc.client.Del(ctx, full...).Err()
}

func (rc *redisCache) Exists(ctx context.Context, key string) bool {
	return rc.client.Exists(ctx, rc.key(key)).Val() > 0
}

// Clear removes the prefixed keys, or flushes the DB when no prefix is set.
func (rc *redisCache) Clear(ctx context.Context) error {
	if rc.config.Prefix == "" {
		return rc.client.FlushDB(ctx).Err()
	}
	iter := rc.client.Scan(ctx, 0, rc.config.Prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func (rc *redisCache) GetWithTTL(ctx context.Context, key string) ([]byte, time.Duration, bool) {
	value, ok := rc.Get(ctx, key)
	if !ok {
		return nil, 0, false
	}
	ttl, err := rc.client.TTL(ctx, rc.key(key)).Result()
	if err != nil || ttl < 0 {
		return value, 0, true
	}
	return value, ttl, true
}

func (rc *redisCache) Close() error {
	return rc.client.Close()
}
