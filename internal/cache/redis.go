package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "enrich:cache:"

// Redis is a Store backed by a Redis instance, for deployments that want
// the cache to survive restarts. Redis handles TTL expiry itself.
// Transport errors are absorbed and reported as misses.
type Redis struct {
	client     *redis.Client
	defaultTTL time.Duration
	logger     *log.Logger
}

// NewRedis creates a Redis-backed cache and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, defaultTTL time.Duration) (*Redis, error) {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Redis{
		client:     client,
		defaultTTL: defaultTTL,
		logger:     log.New(log.Writer(), "[CACHE] ", log.LstdFlags),
	}, nil
}

func (r *Redis) redisKey(key string) string {
	return redisKeyPrefix + normalizeKey(key)
}

// Get returns the cached value for key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if err != nil {
		if err != redis.Nil {
			r.logger.Printf("warn: redis get %s: %v", key, err)
		}
		return nil, false
	}
	return data, true
}

// Set stores value under key for ttl; a non-positive ttl uses the cache's
// default.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, r.redisKey(key), value, ttl).Err(); err != nil {
		r.logger.Printf("warn: redis set %s: %v", key, err)
	}
}

// Has reports whether a live entry exists for key.
func (r *Redis) Has(ctx context.Context, key string) bool {
	n, err := r.client.Exists(ctx, r.redisKey(key)).Result()
	if err != nil {
		r.logger.Printf("warn: redis exists %s: %v", key, err)
		return false
	}
	return n > 0
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		r.logger.Printf("warn: redis del %s: %v", key, err)
	}
}

// Clear removes every enrichment cache entry, leaving unrelated keys in
// the same database alone.
func (r *Redis) Clear(ctx context.Context) {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			r.logger.Printf("warn: redis del %s: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Printf("warn: redis scan: %v", err)
	}
}

// Size counts enrichment cache entries.
func (r *Redis) Size(ctx context.Context) int {
	count := 0
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		r.logger.Printf("warn: redis scan: %v", err)
	}
	return count
}

// Close releases the underlying connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
