package cache

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const DefaultMaxEntries = 500

// memoryEntry keeps the live decoded value so transient hits cost no
// deserialization.
type memoryEntry struct {
	value     interface{}
	timestamp time.Time
	version   string
	ttl       time.Duration
	seq       uint64
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.Sub(e.timestamp) >= e.ttl
}

// orderSlot records one insertion. The sequence number ties the slot to
// a specific generation of the key, so a slot left behind by a deleted
// and later re-inserted key never evicts the fresh entry.
type orderSlot struct {
	key string
	seq uint64
}

// MemoryTier is the transient cache tier: bounded, insertion-order
// eviction (FIFO, not LRU), lazy expiry on read. Lost on restart.
type MemoryTier struct {
	maxEntries int
	data       map[string]*memoryEntry
	order      []orderSlot
	seq        uint64
	hits       uint64
	misses     uint64
	evictions  uint64
	mu         sync.RWMutex
}

func NewMemoryTier(maxEntries int) *MemoryTier {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	return &MemoryTier{
		maxEntries: maxEntries,
		data:       make(map[string]*memoryEntry),
		order:      make([]orderSlot, 0, maxEntries),
	}
}

func (m *MemoryTier) Get(key string, now time.Time) (*memoryEntry, bool) {
	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	if entry.expired(now) {
		m.mu.Lock()
		if entry, exists := m.data[key]; exists && entry.expired(now) {
			delete(m.data, key)
		}
		m.mu.Unlock()

		atomic.AddUint64(&m.misses, 1)
		return nil, false
	}

	atomic.AddUint64(&m.hits, 1)
	return entry, true
}

func (m *MemoryTier) Set(key string, entry *memoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.data[key]; exists {
		// Overwrites keep the original insertion slot.
		entry.seq = old.seq
		m.data[key] = entry
		return
	}

	if len(m.data) >= m.maxEntries {
		m.evictOldestUnsafe()
	}

	m.seq++
	entry.seq = m.seq
	m.order = append(m.order, orderSlot{key: key, seq: m.seq})
	m.data[key] = entry
}

func (m *MemoryTier) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

func (m *MemoryTier) Invalidate(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key := range m.data {
		if strings.Contains(key, pattern) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryTier) ClearExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.data {
		if entry.expired(now) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

func (m *MemoryTier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryTier) Stats() (hits, misses, evictions uint64) {
	return atomic.LoadUint64(&m.hits), atomic.LoadUint64(&m.misses), atomic.LoadUint64(&m.evictions)
}

// evictOldestUnsafe pops insertion order until it finds a slot whose
// sequence still matches the resident entry. Deletes leave stale slots
// behind; they are skipped here instead of being compacted per delete.
func (m *MemoryTier) evictOldestUnsafe() {
	for len(m.order) > 0 {
		victim := m.order[0]
		m.order = m.order[1:]

		if entry, exists := m.data[victim.key]; exists && entry.seq == victim.seq {
			delete(m.data, victim.key)
			atomic.AddUint64(&m.evictions, 1)
			return
		}
	}
}
