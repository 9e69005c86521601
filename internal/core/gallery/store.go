package gallery

import (
	"context"
	"strings"
)

// CacheStore is an opaque key-value store for serialized gallery cache entries.
// Implementations live under internal/db.
type CacheStore interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// CacheKey returns the store key for a contract address.
func CacheKey(address string) string {
	return "gallery:" + strings.ToLower(strings.TrimSpace(address))
}
