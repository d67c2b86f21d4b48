package storage

import (
	"context"
	"sync"

	"github.com/rl1809/flower-auction/internal/port"
)

// MemoryCache is a single-process port.CacheRepository.
type MemoryCache struct {
	mu          sync.Mutex
	idempotency map[string]struct{}
	viewers     map[string]int
	peaks       map[string]int
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		idempotency: make(map[string]struct{}),
		viewers:     make(map[string]int),
		peaks:       make(map[string]int),
	}
}

var _ port.CacheRepository = (*MemoryCache)(nil)

func (m *MemoryCache) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.idempotency[key]; ok {
		return false, nil
	}
	m.idempotency[key] = struct{}{}
	return true, nil
}

func (m *MemoryCache) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.idempotency, key)
	return nil
}

func (m *MemoryCache) JoinClock(ctx context.Context, clockID string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.viewers[clockID]++
	if m.viewers[clockID] > m.peaks[clockID] {
		m.peaks[clockID] = m.viewers[clockID]
	}
	return m.viewers[clockID], m.peaks[clockID], nil
}

func (m *MemoryCache) LeaveClock(ctx context.Context, clockID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.viewers[clockID] > 0 {
		m.viewers[clockID]--
	}
	return m.viewers[clockID], nil
}

func (m *MemoryCache) PeakViews(ctx context.Context, clockID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peaks[clockID], nil
}
