// Package checkpoint persists the highest timestamp a node has issued, so a
// restarted node never hands out a timestamp below one it already used.
package checkpoint

import (
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"hlclock/internal/hlc"
)

var highWaterKey = []byte("hlc/high-water")

// Store keeps the high-water mark in a leveldb database.
type Store struct {
	mu   sync.Mutex
	db   *leveldb.DB
	last hlc.Timestamp
}

// Open opens the store at path. An empty path uses in-memory storage.
func Open(path string) (*Store, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(storage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
		if lerrors.IsCorrupted(err) {
			db, err = leveldb.RecoverFile(path, nil)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint %q: %w", path, err)
	}

	s := &Store{db: db}
	if s.last, err = s.read(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Load returns the persisted high-water mark, or zero if none was saved.
func (s *Store) Load() hlc.Timestamp {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Save persists ts if it is greater than the stored value. It reports
// whether a write happened.
func (s *Store) Save(ts hlc.Timestamp) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.last.Less(ts) {
		return false, nil
	}
	data, err := ts.MarshalBinary()
	if err != nil {
		return false, err
	}
	if err := s.db.Put(highWaterKey, data, &opt.WriteOptions{Sync: true}); err != nil {
		return false, fmt.Errorf("save checkpoint: %w", err)
	}
	s.last = ts
	return true, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) read() (hlc.Timestamp, error) {
	data, err := s.db.Get(highWaterKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint: %w", err)
	}
	var ts hlc.Timestamp
	if err := ts.UnmarshalBinary(data); err != nil {
		return 0, fmt.Errorf("decode checkpoint: %w", err)
	}
	return ts, nil
}
