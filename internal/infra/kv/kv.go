// Package kv provides the bbolt-backed key-value store for device-local state.
package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	bolt "go.etcd.io/bbolt"
)

// Bucket names.
var (
	BucketSettings = []byte("settings")
	BucketPlayer   = []byte("player")
	BucketAuth     = []byte("auth")
)

// legacyOnboardingKey is the pre-1.0 onboarding flag migrated into settings.
const legacyOnboardingKey = "hasCompletedOnboarding"

// Store is a bbolt-backed key-value store. Values are JSON-encoded.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the store at dir/lyrebird.db.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dir, "lyrebird.db")
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open kv store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{BucketSettings, BucketPlayer, BucketAuth} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db}
	s.migrate()

	log.Info().Str("path", path).Msg("KV store opened")
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PutJSON stores a JSON-encoded value under bucket/key.
func (s *Store) PutJSON(bucket []byte, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), data)
	})
}

// GetJSON loads the value stored under bucket/key into out.
// Returns false when the key is absent.
func (s *Store) GetJSON(bucket []byte, key string, out any) (bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// PutString stores a raw string under bucket/key.
func (s *Store) PutString(bucket []byte, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put([]byte(key), []byte(value))
	})
}

// GetString loads the raw string stored under bucket/key.
// Returns "" when the key is absent.
func (s *Store) GetString(bucket []byte, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucket).Get([]byte(key)); v != nil {
			value = string(v)
		}
		return nil
	})
	return value, err
}

// Delete removes bucket/key. Deleting an absent key is a no-op.
func (s *Store) Delete(bucket []byte, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete([]byte(key))
	})
}

// migrate carries forward state written by earlier releases. The legacy
// onboarding flag is read once and rewritten under its current key.
func (s *Store) migrate() {
	legacy, err := s.GetString(BucketSettings, legacyOnboardingKey)
	if err != nil || legacy == "" {
		return
	}

	if err := s.PutJSON(BucketSettings, "onboarding-complete", legacy == "true"); err != nil {
		log.Warn().Err(err).Msg("Failed to migrate onboarding flag")
		return
	}
	if err := s.Delete(BucketSettings, legacyOnboardingKey); err != nil {
		log.Warn().Err(err).Msg("Failed to remove legacy onboarding flag")
	}
	log.Info().Msg("Migrated legacy onboarding flag")
}
