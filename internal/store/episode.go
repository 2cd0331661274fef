package store

import (
	"context"
	"database/sql"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/google/uuid"
)

// EpisodeStore defines the interface for episode artifact persistence.
//
// An episode is the terminal artifact of one generation task. Its annotations
// and questions are dependent rows keyed by episode ID. Because a failed task
// may be retried after the artifacts were partially or fully written, the
// store's Replace operation must be idempotent: a second completion of the
// same task leaves exactly one artifact set behind.
type EpisodeStore interface {
	// Replace atomically deletes any episode previously written for the same
	// (task ID, model) pair, including its annotations and questions in
	// reverse foreign-key order, and inserts the given episode with its
	// dependents. MUST be run within a transaction; use WithTx together with
	// store.RunInTransaction.
	Replace(ctx context.Context, episode *domain.Episode) error

	// GetByID retrieves an episode with its annotations and questions.
	// Returns ErrEpisodeNotFound if the episode does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Episode, error)

	// GetByTaskID retrieves the episode produced by the given task, if any.
	// Returns ErrEpisodeNotFound if the task has not produced an episode.
	GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Episode, error)

	// ListByProfile returns episodes for a profile, newest first, up to limit.
	ListByProfile(ctx context.Context, profileID uuid.UUID, limit int) ([]*domain.Episode, error)

	// WithTx returns a new EpisodeStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) EpisodeStore
}

// ProfileStore defines the interface for generation profile persistence.
type ProfileStore interface {
	// Create saves a new profile. Returns validation errors from the domain
	// Profile if the data is invalid.
	Create(ctx context.Context, profile *domain.Profile) error

	// GetByID retrieves a profile by its unique ID.
	// Returns ErrProfileNotFound if the profile does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error)

	// ListActive returns all profiles with daily generation enabled, ordered
	// by creation time. The enqueue operation creates one task per returned
	// profile.
	ListActive(ctx context.Context) ([]*domain.Profile, error)
}
