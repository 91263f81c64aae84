package cache

import (
	"context"
	"time"
)

// BlockingBackend is the capability shape of an in-process key/value store.
type BlockingBackend interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

// ContextBackend is the capability shape of a remote key/value store. Get
// returns (nil, nil) on a miss.
type ContextBackend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
