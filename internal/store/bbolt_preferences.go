package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketPreferences = []byte("preferences")
	keyPreferences    = []byte("prefs")
)

// BboltPreferenceStore persists preferences in a bbolt database.
type BboltPreferenceStore struct {
	db *bolt.DB
}

func NewBboltPreferenceStore(path string) (*BboltPreferenceStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("preferences db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPreferences)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BboltPreferenceStore{db: db}, nil
}

func (s *BboltPreferenceStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BboltPreferenceStore) Load(ctx context.Context) (*Preferences, error) {
	prefs := &Preferences{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return readPreferences(tx, prefs)
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func (s *BboltPreferenceStore) Save(ctx context.Context, prefs *Preferences) error {
	if prefs == nil {
		return errPreferencesRequired
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return writePreferences(tx, prefs)
	})
}

func (s *BboltPreferenceStore) Update(ctx context.Context, fn func(*Preferences) error) (*Preferences, error) {
	prefs := &Preferences{}
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := readPreferences(tx, prefs); err != nil {
			return err
		}
		if fn != nil {
			if err := fn(prefs); err != nil {
				return err
			}
		}
		return writePreferences(tx, prefs)
	})
	if err != nil {
		return nil, err
	}
	return prefs, nil
}

func readPreferences(tx *bolt.Tx, out *Preferences) error {
	b := tx.Bucket(bucketPreferences)
	if b == nil {
		return nil
	}
	raw := b.Get(keyPreferences)
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func writePreferences(tx *bolt.Tx, prefs *Preferences) error {
	raw, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	b := tx.Bucket(bucketPreferences)
	if b == nil {
		return errors.New("preferences bucket missing")
	}
	return b.Put(keyPreferences, raw)
}
