// Package cache provides the time-bounded enrichment cache keyed by
// contact email. Keys are normalized to lowercase here; callers must not
// pre-normalize.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the enrichment cache contract. Values are opaque bytes; the
// enrichment layer owns the serialization. Backends absorb their own
// failures and report misses instead.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Has(ctx context.Context, key string) bool
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
	Size(ctx context.Context) int
}

// DefaultTTL is used when Set is called with a non-positive TTL.
const DefaultTTL = 7 * 24 * time.Hour

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

// Memory is an in-process Store. An entry is logically absent once its
// expiry has passed; Get and Has evict expired entries on contact, so no
// sweep is required for correctness. Sweep exists for memory hygiene.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemory creates an in-memory cache. A non-positive defaultTTL falls
// back to DefaultTTL.
func NewMemory(defaultTTL time.Duration) *Memory {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Memory{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the cached value for key, treating expired entries as
// misses and evicting them.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	key = normalizeKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false
	}
	return e.data, true
}

// Set stores value under key for ttl; a non-positive ttl uses the cache's
// default.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	key = normalizeKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{data: value, expiresAt: m.now().Add(ttl)}
}

// Has reports whether a live entry exists for key, evicting it if expired.
func (m *Memory) Has(ctx context.Context, key string) bool {
	_, ok := m.Get(ctx, key)
	return ok
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) {
	key = normalizeKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Clear removes every entry.
func (m *Memory) Clear(_ context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]entry)
}

// Size returns the number of stored entries, expired ones included until
// swept or touched.
func (m *Memory) Size(_ context.Context) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes expired entries and returns how many were purged.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	purged := 0
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
			purged++
		}
	}
	return purged
}
