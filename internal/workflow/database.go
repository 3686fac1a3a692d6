package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const handoffBucketName = "handoffs"

// storedHandoff is the on-disk envelope for a handoff
type storedHandoff struct {
	Handoff   Handoff   `json:"handoff"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// BoltHandoffStore implements HandoffStore using BoltDB
type BoltHandoffStore struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBoltHandoffStore opens (or creates) the handoff database at path
func NewBoltHandoffStore(path string, ttl time.Duration) (*BoltHandoffStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(handoffBucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltHandoffStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Put stores the handoff for a session
func (b *BoltHandoffStore) Put(sessionID string, handoff Handoff) error {
	record := storedHandoff{Handoff: handoff}
	if b.ttl > 0 {
		record.ExpiresAt = b.now().Add(b.ttl)
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(handoffBucketName))
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling handoff: %w", err)
		}
		return bucket.Put([]byte(sessionID), data)
	})
}

// Get returns the handoff for a session; expired handoffs are reported as absent
func (b *BoltHandoffStore) Get(sessionID string) (Handoff, bool, error) {
	var (
		record storedHandoff
		found  bool
	)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(handoffBucketName))
		data := bucket.Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return Handoff{}, false, fmt.Errorf("reading handoff: %w", err)
	}
	if !found {
		return Handoff{}, false, nil
	}
	if !record.ExpiresAt.IsZero() && b.now().After(record.ExpiresAt) {
		if err := b.Delete(sessionID); err != nil {
			return Handoff{}, false, err
		}
		return Handoff{}, false, nil
	}
	return record.Handoff, true, nil
}

// Delete removes the handoff for a session
func (b *BoltHandoffStore) Delete(sessionID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(handoffBucketName))
		return bucket.Delete([]byte(sessionID))
	})
}

// Purge removes every expired handoff and returns how many were dropped
func (b *BoltHandoffStore) Purge() (int, error) {
	now := b.now()
	removed := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(handoffBucketName))
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			var record storedHandoff
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling handoff: %w", err)
			}
			if !record.ExpiresAt.IsZero() && now.After(record.ExpiresAt) {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(expired)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Close closes the database
func (b *BoltHandoffStore) Close() error {
	return b.db.Close()
}
