// Package kvstore is a small key-value store with per-key expiry, used for short-lived
// coordination state such as job leases.
package kvstore

import (
	"context"
	"time"
)

// Store keeps string values with a time to live. A zero ttl means no expiry.
type Store interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent or expired and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the value and false when the key is absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, key string) error
	// CompareAndDelete deletes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
}
