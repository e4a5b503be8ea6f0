// Package memory provides in-process storage implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/iudanet/facegate/internal/server/storage"
)

var _ storage.SecretStorage = (*SecretStore)(nil)

type secretEntry struct {
	expiresAt time.Time
	value     string
}

// SecretStore is an in-memory SecretStorage with a fixed TTL.
// Entries are lost on restart.
type SecretStore struct {
	entries map[string]secretEntry
	now     func() time.Time
	ttl     time.Duration
	mu      sync.Mutex
}

// Option configures SecretStore.
type Option func(*SecretStore)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *SecretStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSecretStore creates a store whose entries live for ttl.
func NewSecretStore(ttl time.Duration, opts ...Option) *SecretStore {
	s := &SecretStore{
		entries: make(map[string]secretEntry),
		now:     time.Now,
		ttl:     ttl,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores value under key with expiry now + TTL.
func (s *SecretStore) Put(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = secretEntry{value: value, expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Get returns value by key. Expired entries are removed on access.
func (s *SecretStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return "", storage.ErrSecretNotFound
	}
	return e.value, nil
}

// Consume returns value by key and deletes it under the same lock.
func (s *SecretStore) Consume(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return "", storage.ErrSecretNotFound
	}
	delete(s.entries, key)
	return e.value, nil
}

// Purge deletes all expired entries.
func (s *SecretStore) Purge(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	purged := 0
	for key, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, key)
			purged++
		}
	}
	return purged, nil
}

// Len reports the number of stored entries, expired ones included.
func (s *SecretStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// lookup must be called with s.mu held.
func (s *SecretStore) lookup(key string) (secretEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return secretEntry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return secretEntry{}, false
	}
	return e, true
}
