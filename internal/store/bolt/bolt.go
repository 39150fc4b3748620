// Package bolt implements store.Store on an embedded bbolt database.
//
// Each document owns a bucket holding a "log" sub-bucket keyed by a
// big-endian sequence number and a "snapshot" key.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/dshills/gridsync/internal/engine/tracking"
	"github.com/dshills/gridsync/internal/session"
	"github.com/dshills/gridsync/internal/store"
)

var (
	docsBucket  = []byte("docs")
	logBucket   = []byte("log")
	snapshotKey = []byte("snapshot")
)

// Store is a bbolt-backed store.Store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(docsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Append implements store.Store.
func (s *Store) Append(_ context.Context, docID string, msg session.Message) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		doc, err := tx.Bucket(docsBucket).CreateBucketIfNotExists([]byte(docID))
		if err != nil {
			return err
		}
		log, err := doc.CreateBucketIfNotExists(logBucket)
		if err != nil {
			return err
		}
		seq, err := log.NextSequence()
		if err != nil {
			return err
		}
		return log.Put(uint64ToBytes(seq), data)
	})
}

// Messages implements store.Store.
func (s *Store) Messages(_ context.Context, docID string) ([]session.Message, error) {
	var msgs []session.Message
	err := s.db.View(func(tx *bolt.Tx) error {
		doc := tx.Bucket(docsBucket).Bucket([]byte(docID))
		if doc == nil {
			return nil
		}
		log := doc.Bucket(logBucket)
		if log == nil {
			return nil
		}
		return log.ForEach(func(_, v []byte) error {
			msg, err := session.DecodeMessage(v)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read log of %s: %w", docID, err)
	}
	return msgs, nil
}

// SaveSnapshot implements store.Store.
func (s *Store) SaveSnapshot(_ context.Context, docID string, snap *tracking.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		doc, err := tx.Bucket(docsBucket).CreateBucketIfNotExists([]byte(docID))
		if err != nil {
			return err
		}
		if doc.Bucket(logBucket) != nil {
			if err := doc.DeleteBucket(logBucket); err != nil {
				return err
			}
		}
		return doc.Put(snapshotKey, data)
	})
}

// Snapshot implements store.Store.
func (s *Store) Snapshot(_ context.Context, docID string) (*tracking.Snapshot, error) {
	var snap *tracking.Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		doc := tx.Bucket(docsBucket).Bucket([]byte(docID))
		if doc == nil {
			return store.ErrNotFound
		}
		data := doc.Get(snapshotKey)
		if data == nil {
			return store.ErrNotFound
		}
		snap = &tracking.Snapshot{}
		return json.Unmarshal(data, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot of %s: %w", docID, err)
	}
	return snap, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}
