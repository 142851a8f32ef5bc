// Package jobcache owns the hour-keyed job buckets and the key-value stores
// they live in.
package jobcache

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned by Updater.Update when the key changed between
// read and write
var ErrConflict = errors.New("cache key modified concurrently")

// Store is a plain key-value store with per-key expiry. A miss is reported
// as found == false, never as an error.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// UpdateFunc computes the next value of a key from its current value
type UpdateFunc func(current string, found bool) (string, error)

// Updater is implemented by stores that can run a read-modify-write on a
// single key as an optimistic transaction
type Updater interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error
}
