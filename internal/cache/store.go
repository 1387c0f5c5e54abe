package cache

import (
	"context"
	"errors"
)

// ErrMiss is returned by Get when the key holds no value.
var ErrMiss = errors.New("cache miss")

// Store is a key to string store scoped to one device or visitor.
// Entries have no expiry; they live until overwritten or invalidated.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Invalidate(ctx context.Context, key string) error
	Close() error
}
