package cache

import (
	"context"
	"time"
)

// Cache is the narrow contract the core has with the distributed cache.
// Get reports presence separately from errors so a miss is not an error.
// SetNX is the atomic set-if-absent-with-expiry primitive used for locking.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
