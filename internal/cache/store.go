// Package cache persists upstream intelligence so repeated lookups avoid provider round trips.
//
// IntelStore holds normalized, tenant-scoped records. Store is a plain key/value cache used
// for raw provider feeds that are shared by every tenant.
package cache

import (
	"context"
	"time"
)

// Store is a byte-oriented TTL cache.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Purger is implemented by stores that can drop expired entries in bulk.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}
