/*
Package kvstore provides the small string key-value stores backing the
analytics log, the visit dedup index and the session token.

Two implementations exist: MemoryStore (session-scoped data and tests) and
FileStore (durable local storage for the server-side services). Both can be
given a byte quota; a write that would exceed it fails with ErrQuotaExceeded
and leaves the previous value in place.
*/
package kvstore

import (
	"errors"
	"sync"
)

// ErrQuotaExceeded is returned by Set when the write would exceed the quota.
var ErrQuotaExceeded = errors.New("kvstore: quota exceeded")

// Store is a string key-value store.
type Store interface {
	// Get returns the value for key; ok is false if the key is absent.
	Get(key string) (value string, ok bool, err error)
	// Set stores value under key.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// usage returns the number of bytes the store would hold once key is set to
// value. Quotas count keys and values, like browser storage.
func usage(data map[string]string, key, value string) int {
	n := len(key) + len(value)
	for k, v := range data {
		if k == key {
			continue
		}
		n += len(k) + len(v)
	}
	return n
}

// MemoryStore is an in-memory Store. The zero value is not usable; call
// NewMemoryStore.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	quota int
}

// NewMemoryStore creates a MemoryStore. quota <= 0 means unlimited.
func NewMemoryStore(quota int) *MemoryStore {
	return &MemoryStore{data: make(map[string]string), quota: quota}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.quota > 0 && usage(m.data, key, value) > m.quota {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of keys held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
