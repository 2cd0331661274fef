package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
)

// MemoryProfileStore implements store.ProfileStore with an in-memory map.
type MemoryProfileStore struct {
	mu       sync.RWMutex
	profiles map[uuid.UUID]*domain.Profile
}

var _ store.ProfileStore = (*MemoryProfileStore)(nil)

// NewMemoryProfileStore creates an empty MemoryProfileStore.
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{profiles: make(map[uuid.UUID]*domain.Profile)}
}

func (s *MemoryProfileStore) Create(ctx context.Context, profile *domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[profile.ID]; exists {
		return store.ErrDuplicate
	}
	copied := *profile
	s.profiles[profile.ID] = &copied
	return nil
}

func (s *MemoryProfileStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (s *MemoryProfileStore) ListActive(ctx context.Context) ([]*domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*domain.Profile
	for _, profile := range s.profiles {
		if profile.DailyEnabled {
			copied := *profile
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}
