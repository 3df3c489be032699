// Package journal keeps a local history of completed captures and their
// validation outcomes in a BoltDB file.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "captures"

// ErrNotFound is returned by Get for an unknown session ID
var ErrNotFound = errors.New("capture not found")

// Record is one completed capture
type Record struct {
	ID          string    `json:"id"` // Capture session ID
	Lot         string    `json:"lot"`
	Part        string    `json:"part"`
	State       string    `json:"state"` // Validation outcome state
	Message     string    `json:"message,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	ResolvedAt  time.Time `json:"resolved_at,omitempty"`
}

// Store is the capture history
type Store interface {
	Save(rec *Record) error
	Get(id string) (*Record, error)
	List(limit int) ([]*Record, error)
	Close() error
}

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bbolt.DB
}

// Open opens or creates the journal at path
func Open(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Save inserts or replaces the record keyed by rec.ID
func (s *BoltStore) Save(rec *Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New("record id is required")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshaling record: %w", err)
		}
		return tx.Bucket([]byte(bucketName)).Put([]byte(rec.ID), data)
	})
}

// Get retrieves a record by session ID
func (s *BoltStore) Get(id string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns records newest first. limit <= 0 means all.
func (s *BoltStore) List(limit int) ([]*Record, error) {
	records := make([]*Record, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling record %s: %w", k, err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Close closes the database file
func (s *BoltStore) Close() error {
	return s.db.Close()
}
