package hold

import (
	"context"
	"sync"
)

// MemoryStore keeps the single active hold in process memory. It satisfies
// Store for tests and for deployments that accept losing holds on restart.
type MemoryStore struct {
	mu   sync.Mutex
	hold *Hold
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, h Hold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := h
	copied.BookingIDs = append([]int64(nil), h.BookingIDs...)
	s.hold = &copied
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*Hold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold == nil {
		return nil, nil
	}
	copied := *s.hold
	copied.BookingIDs = append([]int64(nil), s.hold.BookingIDs...)
	return &copied, nil
}

func (s *MemoryStore) Clear(_ context.Context, holdID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hold != nil && s.hold.ID == holdID {
		s.hold = nil
	}
	return nil
}
