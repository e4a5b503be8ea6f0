package storage

import (
	"context"
)

// SecretStorage defines interface for short-lived secrets (one-time codes,
// password reset tokens). Every entry expires after the store TTL.
// Each instance is a separate namespace: keys of different stores never collide.
type SecretStorage interface {
	// Put stores value under key, replacing any previous value.
	// Expiry is reset to now + TTL
	Put(ctx context.Context, key, value string) error

	// Get retrieves value by key without removing it
	// Returns ErrSecretNotFound if key doesn't exist or is expired
	Get(ctx context.Context, key string) (string, error)

	// Consume atomically retrieves and deletes value by key.
	// Of concurrent callers for the same key exactly one gets the value,
	// the others get ErrSecretNotFound
	Consume(ctx context.Context, key string) (string, error)

	Purger
}

// Purger removes expired entries
type Purger interface {
	// Purge deletes all expired entries and returns their number
	Purge(ctx context.Context) (int, error)
}
