// Package storage persists rate-limit backoff state across process
// restarts. Implementations must be safe for concurrent use.
package storage

import (
	"context"
	"sync"
	"time"
)

// TokenStorage stores the rate-limit not-before timestamp per device.
// A zero time means no backoff is recorded.
type TokenStorage interface {
	GetNotBefore(ctx context.Context, deviceID string) (time.Time, error)
	SetNotBefore(ctx context.Context, deviceID string, t time.Time) error
}

// MemoryStorage keeps timestamps in memory. It loses state on restart;
// use Redis or Postgres storage when persistence matters.
type MemoryStorage struct {
	mu    sync.Mutex
	times map[string]time.Time
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{times: make(map[string]time.Time)}
}

// GetNotBefore returns the stored timestamp, zero when none.
func (s *MemoryStorage) GetNotBefore(_ context.Context, deviceID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.times[deviceID], nil
}

// SetNotBefore stores the timestamp for the device.
func (s *MemoryStorage) SetNotBefore(_ context.Context, deviceID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.times[deviceID] = t
	return nil
}
