package cache

import (
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryTier is the bounded in-process cache tier. Entries expire passively on
// read; capacity pressure evicts in LRU order.
type MemoryTier struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	order      []string
	maxEntries int
}

func NewMemoryTier(maxEntries int) *MemoryTier {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &MemoryTier{
		entries:    make(map[string]memoryEntry),
		order:      make([]string, 0, maxEntries),
		maxEntries: maxEntries,
	}
}

func (t *MemoryTier) Get(key string) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(t.entries, key)
		t.removeFromOrder(key)
		return nil, false
	}

	t.moveToEnd(key)
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, true
}

func (t *MemoryTier) Set(key string, value []byte, ttl time.Duration) {
	stored := make([]byte, len(value))
	copy(stored, value)

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[key]; exists {
		t.entries[key] = memoryEntry{value: stored, expiresAt: time.Now().Add(ttl)}
		t.moveToEnd(key)
		return
	}

	for len(t.entries) >= t.maxEntries && len(t.order) > 0 {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.entries, oldest)
	}

	t.entries[key] = memoryEntry{value: stored, expiresAt: time.Now().Add(ttl)}
	t.order = append(t.order, key)
}

func (t *MemoryTier) Invalidate(pattern string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key := range t.entries {
		if strings.HasPrefix(key, pattern) {
			delete(t.entries, key)
			t.removeFromOrder(key)
		}
	}
}

func (t *MemoryTier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *MemoryTier) moveToEnd(key string) {
	t.removeFromOrder(key)
	t.order = append(t.order, key)
}

func (t *MemoryTier) removeFromOrder(key string) {
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			return
		}
	}
}
