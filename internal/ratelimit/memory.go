package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the default single-instance backend. Counters live in a
// map; a background goroutine evicts expired windows.
type MemoryStore struct {
	data       map[string]*entry
	mu         sync.RWMutex
	gcInterval time.Duration
	stopCh     chan struct{}
}

type entry struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store; gcInterval bounds how long
// expired windows linger.
func NewMemoryStore(gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}
	store := &MemoryStore{
		data:       make(map[string]*entry),
		gcInterval: gcInterval,
		stopCh:     make(chan struct{}),
	}
	go store.gc()
	return store
}

// Get retrieves the current count for a key
func (s *MemoryStore) Get(_ context.Context, key string) (int64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[key]
	if !ok || time.Now().After(e.expiresAt) {
		return 0, time.Time{}, nil
	}
	return e.count, e.expiresAt, nil
}

// Increment bumps the counter, starting a fresh window when expired
func (s *MemoryStore) Increment(_ context.Context, key string, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	e, ok := s.data[key]
	if !ok || now.After(e.expiresAt) {
		s.data[key] = &entry{count: 1, expiresAt: now.Add(window)}
		return 1, nil
	}
	e.count++
	return e.count, nil
}

// Reset clears the counter for a key
func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// Close stops the eviction goroutine
func (s *MemoryStore) Close() error {
	close(s.stopCh)
	return nil
}

func (s *MemoryStore) gc() {
	ticker := time.NewTicker(s.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.data {
		if now.After(e.expiresAt) {
			delete(s.data, key)
		}
	}
}
