package pricecache

import (
	"context"
	"strings"
	"sync"
)

// MemoryCache is an in-process Cache used by paper sessions and tests.
type MemoryCache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	flags  map[string]bool
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		quotes: make(map[string]Quote),
		flags:  make(map[string]bool),
	}
}

func (m *MemoryCache) Get(_ context.Context, symbol string) (Quote, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotes[symbol]
	return q, ok, nil
}

func (m *MemoryCache) Set(_ context.Context, symbol string, q Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[symbol] = q
	return nil
}

// Remove deletes one symbol.
func (m *MemoryCache) Remove(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.quotes, symbol)
}

func (m *MemoryCache) Flag(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags[key], nil
}

func (m *MemoryCache) SetFlag(_ context.Context, key string, value bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[key] = value
	return nil
}

func (m *MemoryCache) DeletePrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k := range m.quotes {
		if strings.HasPrefix(k, prefix) {
			delete(m.quotes, k)
			n++
		}
	}
	return n, nil
}

func (m *MemoryCache) Close() error { return nil }
