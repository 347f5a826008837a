package cache

import (
	"context"
	"sync"
	"time"

	"tourcast/internal/domain"
)

type memoryEntry struct {
	entry     Entry
	expiresAt time.Time
}

// Memory is an in-process cache used when no database is configured and as
// the first tier in front of the durable store.
type Memory struct {
	mu      sync.RWMutex
	entries map[domain.Fingerprint]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[domain.Fingerprint]memoryEntry),
		now:     time.Now,
	}
}

// NewMemoryWithClock injects the time source for expiry tests.
func NewMemoryWithClock(now func() time.Time) *Memory {
	m := NewMemory()
	m.now = now
	return m
}

func (m *Memory) Get(ctx context.Context, fp domain.Fingerprint) (*Entry, bool, error) {
	m.mu.RLock()
	stored, ok := m.entries[fp]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !stored.expiresAt.After(m.now()) {
		m.mu.Lock()
		delete(m.entries, fp)
		m.mu.Unlock()
		return nil, false, nil
	}
	entry := stored.entry
	return &entry, true, nil
}

func (m *Memory) Put(ctx context.Context, fp domain.Fingerprint, entry Entry, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	m.entries[fp] = memoryEntry{entry: entry, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(ctx context.Context, fp domain.Fingerprint) error {
	m.mu.Lock()
	delete(m.entries, fp)
	m.mu.Unlock()
	return nil
}

var _ Store = (*Memory)(nil)
