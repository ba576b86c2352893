package redis_utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockdesk/src/config"
	"stockdesk/src/storage"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ storage.Storage = (*RedisHandler)(nil)

// RedisHandler encapsulates the Redis client and provides utility methods.
type RedisHandler struct {
	client *redis.Client
	prefix string
}

// NewRedisHandler initializes a new Redis handler.
func NewRedisHandler(ctx context.Context, cfg *config.Config) (*RedisHandler, error) {
	opts := &redis.Options{
		Addr:     cfg.Storage.Redis.Host + ":" + cfg.Storage.Redis.Port,
		Username: cfg.Storage.Redis.Username,
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.Database,
	}
	if cfg.Storage.Redis.TLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(opts)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisHandler{
		client: client,
		prefix: "stockdesk:",
	}, nil
}

// Set stores a key-value pair in Redis with an optional expiration.
func (r *RedisHandler) Set(ctx context.Context, key, value string, expiration time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, expiration).Err()
}

// Get returns storage.ErrNotFound for missing keys.
func (r *RedisHandler) Get(ctx context.Context, key string) (string, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	} else if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return data, nil
}

// Delete removes keys from Redis.
func (r *RedisHandler) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.prefix + key
	}
	return r.client.Del(ctx, prefixed...).Err()
}

// Exists checks if a key exists in Redis.
func (r *RedisHandler) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, r.prefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}
	return count > 0, nil
}

// CacheKey builds a deterministic key (name-based UUIDv3 over the inputs) under a readable namespace.
func CacheKey(namespace string, inputs ...string) string {
	ns := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8") // DNS namespace
	id := uuid.NewMD5(ns, []byte(strings.Join(inputs, "\x00")))
	return namespace + ":" + id.String()
}

// Close closes the Redis client connection.
func (r *RedisHandler) Close() error {
	return r.client.Close()
}
