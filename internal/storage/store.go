package storage

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"hlclock/internal/hlc"
)

// Clock issues and observes timestamps. *clock.Clock implements it.
type Clock interface {
	Advance() (hlc.Timestamp, error)
	Update(remote hlc.Timestamp) (hlc.Timestamp, error)
}

// VersionedValue represents a value with the timestamp of its last write.
type VersionedValue struct {
	Value     []byte
	Version   hlc.Timestamp
	Deleted   bool       // True if this is a tombstone (deleted)
	ExpiresAt *time.Time // nil if no expiration
}

// IsExpired checks if the value has expired.
func (vv *VersionedValue) IsExpired() bool {
	if vv.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*vv.ExpiresAt)
}

// IsTombstone checks if this is a deletion tombstone.
func (vv *VersionedValue) IsTombstone() bool {
	return vv.Deleted
}

func (vv *VersionedValue) samePayload(value []byte, deleted bool) bool {
	return vv.Deleted == deleted && bytes.Equal(vv.Value, value)
}

// Store defines the interface for key-value storage.
type Store interface {
	// Get retrieves a value by key. Returns nil if not found or expired.
	Get(key string) *VersionedValue
	// Put stores a value stamped with a fresh local timestamp. A zero ttl
	// means the value never expires.
	Put(key string, value []byte, ttl time.Duration) (hlc.Timestamp, error)
	// PutRepair stores a replicated write with its original version. It only
	// overwrites when the incoming version is strictly newer.
	PutRepair(key string, value []byte, version hlc.Timestamp, deleted bool) error
	// Delete stores a tombstone stamped with a fresh local timestamp.
	Delete(key string) (hlc.Timestamp, error)
	// Keys returns the live keys in sorted order.
	Keys() []string
}

// InMemoryStore is an in-memory implementation of Store.
// It's thread-safe and supports TTL expiration.
type InMemoryStore struct {
	mu    sync.RWMutex
	data  map[string]*VersionedValue
	clock Clock
}

// NewInMemoryStore creates a new in-memory store stamping writes with clock.
func NewInMemoryStore(clock Clock) *InMemoryStore {
	return &InMemoryStore{
		data:  make(map[string]*VersionedValue),
		clock: clock,
	}
}

// Get retrieves a value by key.
func (s *InMemoryStore) Get(key string) *VersionedValue {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vv, exists := s.data[key]
	if !exists {
		return nil
	}

	if vv.IsExpired() {
		// Clean up expired entry (best effort, don't block readers)
		go s.deleteExpired(key)
		return nil
	}

	// Return a copy to avoid external modifications
	return &VersionedValue{
		Value:     append([]byte(nil), vv.Value...),
		Version:   vv.Version,
		Deleted:   vv.Deleted,
		ExpiresAt: copyTime(vv.ExpiresAt),
	}
}

// Put stores a value under a new local timestamp.
func (s *InMemoryStore) Put(key string, value []byte, ttl time.Duration) (hlc.Timestamp, error) {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	return s.write(key, append([]byte(nil), value...), false, expiresAt)
}

// Delete stores a tombstone under a new local timestamp.
func (s *InMemoryStore) Delete(key string) (hlc.Timestamp, error) {
	// Store tombstone instead of deleting (for replication)
	return s.write(key, nil, true, nil)
}

func (s *InMemoryStore) write(key string, value []byte, deleted bool, expiresAt *time.Time) (hlc.Timestamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// The clock has seen every stored version, so this one is newer.
	version, err := s.clock.Advance()
	if err != nil {
		return 0, fmt.Errorf("stamp write to %q: %w", key, err)
	}

	s.data[key] = &VersionedValue{
		Value:     value,
		Version:   version,
		Deleted:   deleted,
		ExpiresAt: expiresAt,
	}
	return version, nil
}

// PutRepair stores a replicated write with its exact version (no new stamp).
// Older versions are ignored. An equal version carrying a different payload
// means two writes collided and is reported as hlc.ErrAmbiguousMerge.
func (s *InMemoryStore) PutRepair(key string, value []byte, version hlc.Timestamp, deleted bool) error {
	if version.IsZero() {
		return fmt.Errorf("repair requires non-zero version")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// An identical timestamp is our own write coming back.
	if _, err := s.clock.Update(version); err != nil && !errors.Is(err, hlc.ErrAmbiguousMerge) {
		return fmt.Errorf("observe version %s: %w", version, err)
	}

	if existing, exists := s.data[key]; exists && !existing.IsExpired() {
		switch version.Compare(existing.Version) {
		case -1:
			return nil
		case 0:
			if existing.samePayload(value, deleted) {
				return nil
			}
			return fmt.Errorf("key %q at %s: %w", key, version, hlc.ErrAmbiguousMerge)
		}
	}

	var valueCopy []byte
	if !deleted {
		valueCopy = append([]byte(nil), value...)
	}
	s.data[key] = &VersionedValue{
		Value:   valueCopy,
		Version: version,
		Deleted: deleted,
	}
	return nil
}

// Keys returns the keys of live, non-deleted entries.
func (s *InMemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k, vv := range s.data {
		if vv.Deleted || vv.IsExpired() {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// deleteExpired removes an expired key (called asynchronously).
func (s *InMemoryStore) deleteExpired(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if vv, exists := s.data[key]; exists && vv.IsExpired() {
		delete(s.data, key)
	}
}

// copyTime creates a copy of a time pointer.
func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copy := *t
	return &copy
}
