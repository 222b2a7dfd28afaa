// Package store holds the collection store backends: in-process memory,
// Redis and PostgreSQL. Each stores one JSON document per collection key.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
)

// Memory keeps collections in a map. It is the default backend and the one
// tests run against. Payloads are copied in and out so callers cannot alias
// stored bytes.
type Memory struct {
	mu      sync.RWMutex
	docs    map[string][]byte
	expires map[string]time.Time
	now     func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs:    make(map[string][]byte),
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

// WithClock replaces the time source used for expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

// live reports whether k is stored and not expired. Callers hold mu.
func (m *Memory) live(k string) bool {
	if _, ok := m.docs[k]; !ok {
		return false
	}
	exp, ok := m.expires[k]
	return !ok || m.now().Before(exp)
}

func (m *Memory) Get(_ context.Context, key domain.CollectionKey) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := key.String()
	if !m.live(k) {
		return nil, nil
	}
	return append([]byte(nil), m.docs[k]...), nil
}

func (m *Memory) Put(_ context.Context, key domain.CollectionKey, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	m.docs[k] = append([]byte(nil), payload...)
	delete(m.expires, k)
	return nil
}

// PutWithTTL stores payload until ttl has passed. A non-positive ttl keeps it
// forever.
func (m *Memory) PutWithTTL(_ context.Context, key domain.CollectionKey, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	m.sweep()
	m.docs[k] = append([]byte(nil), payload...)
	if ttl > 0 {
		m.expires[k] = m.now().Add(ttl)
	} else {
		delete(m.expires, k)
	}
	return nil
}

// sweep drops expired documents. Callers hold mu for writing.
func (m *Memory) sweep() {
	for k := range m.expires {
		if !m.live(k) {
			delete(m.docs, k)
			delete(m.expires, k)
		}
	}
}

func (m *Memory) Delete(_ context.Context, key domain.CollectionKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key.String()
	delete(m.docs, k)
	delete(m.expires, k)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

// Keys lists every live key. Used by tests and the CLI.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.docs))
	for k := range m.docs {
		if m.live(k) {
			keys = append(keys, k)
		}
	}
	return keys
}
