package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps profiles in an in-process map, ideal for local
// development or tests.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[uuid.UUID]Profile
}

// NewMemoryStore constructs a store seeded with optional initial profiles.
func NewMemoryStore(initial []Profile) *MemoryStore {
	data := make(map[uuid.UUID]Profile, len(initial))
	for _, p := range initial {
		data[p.ID] = p
	}
	return &MemoryStore{data: data}
}

// FetchByID returns the stored profile, or (nil, nil) when absent.
func (s *MemoryStore) FetchByID(_ context.Context, id uuid.UUID, _ string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.data[id]
	if !ok {
		return nil, nil
	}
	copied := p
	return &copied, nil
}

// Insert stores a new profile, rejecting duplicates.
func (s *MemoryStore) Insert(_ context.Context, p Profile, _ string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.ID]; exists {
		return Profile{}, fmt.Errorf("profile %s already exists", p.ID)
	}
	s.data[p.ID] = p
	return p, nil
}
