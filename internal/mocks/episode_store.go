package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
)

// MemoryEpisodeStore implements store.EpisodeStore with an in-memory map.
// Replace honors the same (task ID, model) semantics as the Postgres
// implementation so idempotent-completion tests exercise real behavior.
type MemoryEpisodeStore struct {
	mu       sync.RWMutex
	episodes map[uuid.UUID]*domain.Episode
}

var _ store.EpisodeStore = (*MemoryEpisodeStore)(nil)

// NewMemoryEpisodeStore creates an empty MemoryEpisodeStore.
func NewMemoryEpisodeStore() *MemoryEpisodeStore {
	return &MemoryEpisodeStore{episodes: make(map[uuid.UUID]*domain.Episode)}
}

func (s *MemoryEpisodeStore) Replace(ctx context.Context, episode *domain.Episode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.episodes {
		if existing.TaskID == episode.TaskID && existing.Model == episode.Model {
			delete(s.episodes, id)
		}
	}
	copied := *episode
	s.episodes[episode.ID] = &copied
	return nil
}

func (s *MemoryEpisodeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	episode, ok := s.episodes[id]
	if !ok {
		return nil, store.ErrEpisodeNotFound
	}
	copied := *episode
	return &copied, nil
}

func (s *MemoryEpisodeStore) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, episode := range s.episodes {
		if episode.TaskID == taskID {
			copied := *episode
			return &copied, nil
		}
	}
	return nil, store.ErrEpisodeNotFound
}

func (s *MemoryEpisodeStore) ListByProfile(ctx context.Context, profileID uuid.UUID, limit int) ([]*domain.Episode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Episode
	for _, episode := range s.episodes {
		if episode.ProfileID == profileID {
			copied := *episode
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].EpisodeDate.After(matched[j].EpisodeDate)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// WithTx returns the store itself; the in-memory implementation has no
// transaction boundary.
func (s *MemoryEpisodeStore) WithTx(tx *sql.Tx) store.EpisodeStore {
	return s
}

// Count returns the number of stored episodes.
func (s *MemoryEpisodeStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.episodes)
}
