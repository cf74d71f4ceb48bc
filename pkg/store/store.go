// Package store provides the key-value stores the policy engine's shared
// state (response cache metadata, preflight verdicts) is injected with.
// The engine itself never owns storage; it only requires that writes to a
// given key are atomic and that reads are safe to run concurrently.
package store

import (
	"strings"
	"sync"
	"time"
)

// Store is a byte-oriented key-value store with per-entry expiry.
//
// Implementations must be safe for concurrent use, and a Put for a given
// key must be atomic: a reader sees either the previous value or the new
// one, never a torn entry.
type Store interface {
	// Get returns the value for key. The second result is false when the
	// key is absent or the entry has expired.
	Get(key string) ([]byte, bool, error)
	// Put stores value under key. A zero expires keeps the entry until it
	// is purged.
	Put(key string, expires time.Time, value []byte) error
	// All returns every live entry whose key starts with prefix.
	All(prefix string) (map[string][]byte, error)
	// Purge removes the entry for key, if any.
	Purge(key string) error
}

type memEntry struct {
	expires time.Time
	value   []byte
}

// MemStore is an in-process Store backed by a mutex-guarded map. The
// single lock makes every write trivially atomic per key.
type MemStore struct {
	mu sync.RWMutex
	db map[string]memEntry
}

func NewMemStore() *MemStore {
	return &MemStore{db: make(map[string]memEntry)}
}

func (m *MemStore) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.db[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemStore) Put(key string, expires time.Time, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db[key] = memEntry{expires: expires, value: value}
	return nil
}

func (m *MemStore) All(prefix string) (map[string][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make(map[string][]byte)
	now := time.Now()
	for key, entry := range m.db {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if !entry.expires.IsZero() && now.After(entry.expires) {
			continue
		}
		entries[key] = entry.value
	}
	return entries, nil
}

func (m *MemStore) Purge(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.db, key)
	return nil
}
