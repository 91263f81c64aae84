package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend implements ContextBackend on a shared redis instance. Entries
// are immutable once written: a later write replaces the value wholesale.
type RedisBackend struct {
	client     *redis.Client
	defaultTTL time.Duration
}

// NewRedisBackend connects using a redis URL (redis://[:password@]host:port/db).
func NewRedisBackend(url string, defaultTTL time.Duration) (*RedisBackend, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisBackend{client: redis.NewClient(opts), defaultTTL: defaultTTL}, nil
}

// NewRedisBackendFromClient wraps an existing client. Used by tests and by
// callers that share one connection pool with the query counter.
func NewRedisBackendFromClient(client *redis.Client, defaultTTL time.Duration) *RedisBackend {
	return &RedisBackend{client: client, defaultTTL: defaultTTL}
}

func (r *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (r *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = r.defaultTTL
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Client exposes the underlying connection for the query counter.
func (r *RedisBackend) Client() *redis.Client {
	return r.client
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
