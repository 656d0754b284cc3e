package cachestore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis backs Store with a shared redis instance, for deployments running
// more than one ragqa process that should share one embedding token cache.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis connects to redisURL (a redis:// or rediss:// connection
// string) and namespaces every key under prefix.
func NewRedis(redisURL, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &Redis{client: redis.NewClient(opts), prefix: prefix}, nil
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// NewFromConfig picks Redis when backend is "redis" and redisURL is set,
// falling back to an in-process Memory store otherwise — the default concurrency model stays
// unchanged unless an operator opts into a shared backend.
func NewFromConfig(backend, redisURL, prefix string) (Store, error) {
	if backend != "redis" || redisURL == "" {
		return NewMemory(), nil
	}
	return NewRedis(redisURL, prefix)
}
