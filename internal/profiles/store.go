// Package profiles reads provider and seeker profiles for scoring. Profiles
// are owned by the profile-management service; every store here is read-only.
package profiles

import (
	"context"
	"errors"
	"sync"

	"advisor-match-engine/internal/models"
)

// ErrNotFound is returned when the requested profile does not exist.
var ErrNotFound = errors.New("profile not found")

// Store loads profiles by id. Implementations return an error wrapping
// ErrNotFound for unknown ids and any other error for infrastructure failures.
type Store interface {
	GetProvider(ctx context.Context, id string) (*models.Provider, error)
	GetSeeker(ctx context.Context, id string) (*models.Seeker, error)
}

// MemoryStore keeps profiles in process. Used by tests and embedded callers
// that already hold their profiles.
type MemoryStore struct {
	mu        sync.RWMutex
	providers map[string]models.Provider
	seekers   map[string]models.Seeker
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers: make(map[string]models.Provider),
		seekers:   make(map[string]models.Seeker),
	}
}

func (s *MemoryStore) PutProvider(p models.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.ID] = p
}

func (s *MemoryStore) PutSeeker(sk models.Seeker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seekers[sk.ID] = sk
}

func (s *MemoryStore) GetProvider(ctx context.Context, id string) (*models.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) GetSeeker(ctx context.Context, id string) (*models.Seeker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.seekers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &sk, nil
}
