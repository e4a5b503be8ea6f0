// Package boltdb implements durable secret storage on top of BoltDB.
package boltdb

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

// Known namespaces
const (
	BucketOTP           = "otp"
	BucketPasswordReset = "password_reset"
)

// Storage represents BoltDB storage for short-lived secrets.
// Every namespace lives in its own bucket
type Storage struct {
	db  *bbolt.DB
	now func() time.Time
}

// Option configures Storage
type Option func(*Storage)

// WithClock overrides time source used for expiry
func WithClock(fn func() time.Time) Option {
	return func(s *Storage) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New opens BoltDB file at dbPath and creates known buckets
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	// Инициализируем buckets
	if err := s.initBuckets(BucketOTP, BucketPasswordReset); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Namespace returns secret store bound to bucket name with given TTL.
// The bucket is created if it doesn't exist
func (s *Storage) Namespace(name string, ttl time.Duration) (*SecretStore, error) {
	if err := s.initBuckets(name); err != nil {
		return nil, fmt.Errorf("failed to initialize bucket %q: %w", name, err)
	}
	return &SecretStore{storage: s, bucket: []byte(name), ttl: ttl}, nil
}

// initBuckets создает buckets если они не существуют
func (s *Storage) initBuckets(names ...string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range names {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}
