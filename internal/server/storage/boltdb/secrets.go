package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/facegate/internal/server/storage"
)

var _ storage.SecretStorage = (*SecretStore)(nil)

// record is the JSON value kept in a bucket
type record struct {
	ExpiresAt time.Time `json:"expires_at"`
	Value     string    `json:"value"`
}

// SecretStore implements storage.SecretStorage over a single bucket
type SecretStore struct {
	storage *Storage
	bucket  []byte
	ttl     time.Duration
}

// Put stores value under key with expiry now + TTL
func (s *SecretStore) Put(ctx context.Context, key, value string) error {
	return s.storage.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("%s bucket not found", s.bucket)
		}

		// Сериализуем запись в JSON
		data, err := json.Marshal(record{
			Value:     value,
			ExpiresAt: s.storage.now().Add(s.ttl),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal secret: %w", err)
		}

		if err := bucket.Put([]byte(key), data); err != nil {
			return fmt.Errorf("failed to save secret: %w", err)
		}
		return nil
	})
}

// Get retrieves value by key. Expired record is reported as absent
func (s *SecretStore) Get(ctx context.Context, key string) (string, error) {
	var value string

	err := s.storage.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("%s bucket not found", s.bucket)
		}

		rec, err := s.read(bucket, key)
		if err != nil {
			return err
		}
		value = rec.Value
		return nil
	})
	if err != nil {
		return "", err
	}

	return value, nil
}

// Consume retrieves and deletes value in one write transaction.
// BoltDB serializes writers, so only one caller sees the value
func (s *SecretStore) Consume(ctx context.Context, key string) (string, error) {
	var value string

	err := s.storage.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("%s bucket not found", s.bucket)
		}

		rec, err := s.read(bucket, key)
		if err != nil {
			return err
		}

		if err := bucket.Delete([]byte(key)); err != nil {
			return fmt.Errorf("failed to delete secret: %w", err)
		}
		value = rec.Value
		return nil
	})
	if err != nil {
		return "", err
	}

	return value, nil
}

// Purge deletes expired records from the bucket
func (s *SecretStore) Purge(ctx context.Context) (int, error) {
	purged := 0

	err := s.storage.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("%s bucket not found", s.bucket)
		}

		// Собираем ключи отдельно: удалять во время ForEach нельзя
		now := s.storage.now()
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil || !now.Before(rec.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return fmt.Errorf("failed to delete expired secret: %w", err)
			}
		}
		purged = len(expired)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return purged, nil
}

func (s *SecretStore) read(bucket *bbolt.Bucket, key string) (record, error) {
	data := bucket.Get([]byte(key))
	if data == nil {
		return record{}, storage.ErrSecretNotFound
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("failed to unmarshal secret: %w", err)
	}

	if !s.storage.now().Before(rec.ExpiresAt) {
		return record{}, storage.ErrSecretNotFound
	}
	return rec, nil
}
