package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/askdesk/askdesk/pkg/metrics"
)

type memoryEntry struct {
	text     string
	storedAt time.Time
}

// MemoryCache is a process-local answer cache with a fixed TTL.
// MaxEntries of zero means unbounded.
type MemoryCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]memoryEntry
	now        func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	return &MemoryCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]memoryEntry),
		now:        time.Now,
	}
}

// Get returns the answer stored under key if it is younger than the TTL.
func (m *MemoryCache) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return "", false
	}
	if m.now().Sub(e.storedAt) >= m.ttl {
		delete(m.entries, key)
		metrics.MemoryCacheEntries.Set(float64(len(m.entries)))
		return "", false
	}
	return e.text, true
}

// Set stores text under key, replacing any previous entry.
func (m *MemoryCache) Set(key, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.sweepLocked()
		if len(m.entries) >= m.maxEntries {
			m.dropOldestLocked()
		}
	}
	m.entries[key] = memoryEntry{text: text, storedAt: m.now()}
	metrics.MemoryCacheEntries.Set(float64(len(m.entries)))
}

// Len returns the number of stored entries, stale ones included.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes stale entries and returns how many were dropped.
func (m *MemoryCache) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.sweepLocked()
	metrics.MemoryCacheEntries.Set(float64(len(m.entries)))
	return n
}

// Run sweeps every interval until ctx is cancelled.
func (m *MemoryCache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *MemoryCache) sweepLocked() int {
	now := m.now()
	n := 0
	for k, e := range m.entries {
		if now.Sub(e.storedAt) >= m.ttl {
			delete(m.entries, k)
			n++
		}
	}
	return n
}

func (m *MemoryCache) dropOldestLocked() {
	var oldestKey string
	var oldest time.Time
	first := true
	for k, e := range m.entries {
		if first || e.storedAt.Before(oldest) {
			oldestKey, oldest, first = k, e.storedAt, false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
	}
}
