// Package store defines the counter store consumed by the OTP guard
// and the invite service: a key-value store with per-key TTL and an
// atomic increment. The store is passed explicitly to the components
// that need it rather than imported as a process-wide client, so
// tests can substitute the in-process implementation.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps transport failures talking to the backing
// store. Callers must surface it as a transient server error, never
// as an authorization or rate-limit decision.
var ErrUnavailable = errors.New("counter store unavailable")

// Store is the contract required by the OTP guard and invite service.
// All TTLs are absolute per-key expiries; a zero TTL means no expiry.
type Store interface {
	// Set writes a value with a TTL, replacing any existing entry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes only when the key is absent. It returns true when
	// the write happened, false when the key already existed.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the value and true, or "" and false when the key is
	// missing or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	// GetDel atomically reads and removes a key. Missing keys report
	// false with no error.
	GetDel(ctx context.Context, key string) (string, bool, error)
	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error
	// Incr atomically increments the counter at key and resets its
	// expiry to ttl in the same indivisible operation, returning the
	// new value. Concurrent calls on one key never lose updates.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
