package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Service defines the cache operations the resolver needs. Flush drops
// every key at once: governance invalidation is a broadcast, never a
// per-key repair.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	Flush(ctx context.Context) error
	Exists(ctx context.Context, keys ...string) (bool, error)
	Close() error
}
