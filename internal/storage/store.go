package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is missing or expired.
var ErrNotFound = errors.New("storage: key not found")

// ErrCorrupt is returned when a stored value exists but cannot be decoded.
var ErrCorrupt = errors.New("storage: corrupt value")

// Store is a byte-valued key-value store with per-key TTL. A zero TTL never expires.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}
