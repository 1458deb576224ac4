package storage

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hailam/endgamelab/internal/tablebase"
)

const evalKeyPrefix = "eval:"

// Store wraps BadgerDB as the persistent evaluation tier. Entries expire via
// badger's native TTL, so stale oracle answers age out without a sweeper.
type Store struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens (or creates) the store in dir. Records live for ttl; a
// non-positive ttl keeps them forever.
func Open(dir string, ttl time.Duration) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // badger's own logging is noise here

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, ttl: ttl}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save writes record under its position key.
func (s *Store) Save(record *tablebase.Evaluation) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(evalKeyPrefix+record.Key), data)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Load returns the stored evaluation for key, or (nil, nil) when the key is
// unknown or its entry has expired.
func (s *Store) Load(key string) (*tablebase.Evaluation, error) {
	var record *tablebase.Evaluation

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(evalKeyPrefix + key))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			record = &tablebase.Evaluation{}
			return json.Unmarshal(val, record)
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Len counts stored evaluations. Used by the stats endpoint; iterates keys
// only.
func (s *Store) Len() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(evalKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}
