package store

import (
	"context"
	"errors"
	"sync"

	"github.com/dunamismax/resizeflow/internal/domain"
)

var ErrInvalidCapacity = errors.New("usage store capacity must be positive")

// MemoryUsageStore keeps the most recent entries in a fixed-size ring.
type MemoryUsageStore struct {
	mu      sync.RWMutex
	entries []domain.UsageLog
	next    int
	full    bool
}

func NewMemoryUsageStore(capacity int) (*MemoryUsageStore, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &MemoryUsageStore{
		entries: make([]domain.UsageLog, capacity),
	}, nil
}

func (s *MemoryUsageStore) Record(_ context.Context, entry domain.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[s.next] = entry
	s.next = (s.next + 1) % len(s.entries)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (s *MemoryUsageStore) Recent(_ context.Context, limit int) ([]domain.UsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = len(s.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	out := make([]domain.UsageLog, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.entries)) % len(s.entries)
		out = append(out, s.entries[idx])
	}
	return out, nil
}

func (s *MemoryUsageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.full {
		return len(s.entries)
	}
	return s.next
}

func (s *MemoryUsageStore) Close() error {
	return nil
}
