package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/platform/logger"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
)

// EpisodeStore implements store.EpisodeStore using PostgreSQL.
type EpisodeStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewEpisodeStore creates an EpisodeStore over the given connection or
// transaction. If logger is nil, a default logger is used.
func NewEpisodeStore(db store.DBTX, logger *slog.Logger) *EpisodeStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &EpisodeStore{
		db:     db,
		logger: logger.With(slog.String("component", "episode_store")),
	}
}

var _ store.EpisodeStore = (*EpisodeStore)(nil)

// WithTx implements store.EpisodeStore.WithTx.
func (s *EpisodeStore) WithTx(tx *sql.Tx) store.EpisodeStore {
	return &EpisodeStore{db: tx, logger: s.logger}
}

// Replace implements store.EpisodeStore.Replace: delete any prior artifact
// set for the same (task, model) in reverse foreign-key order, then insert
// the fresh set. Run inside a transaction via WithTx.
func (s *EpisodeStore) Replace(ctx context.Context, episode *domain.Episode) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := episode.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	// Dependents first, then the episode rows themselves.
	deletes := []string{
		`DELETE FROM questions WHERE episode_id IN
			(SELECT id FROM episodes WHERE task_id = $1 AND model = $2)`,
		`DELETE FROM annotations WHERE episode_id IN
			(SELECT id FROM episodes WHERE task_id = $1 AND model = $2)`,
		`DELETE FROM episodes WHERE task_id = $1 AND model = $2`,
	}
	for _, query := range deletes {
		if _, err := s.db.ExecContext(ctx, query, episode.TaskID, episode.Model); err != nil {
			return fmt.Errorf("failed to delete prior artifacts: %w", err)
		}
	}

	insertEpisode := `
		INSERT INTO episodes
			(id, task_id, profile_id, model, episode_date, title, theme,
			 passage, annotated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, insertEpisode,
		episode.ID, episode.TaskID, episode.ProfileID, episode.Model,
		episode.EpisodeDate, episode.Title, episode.Theme,
		episode.Passage, episode.Annotated, episode.CreatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: task or profile missing for episode", store.ErrInvalidEntity)
		}
		return fmt.Errorf("failed to insert episode: %w", err)
	}

	insertAnnotation := `
		INSERT INTO annotations (id, episode_id, span_start, span_end, surface, reading)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, a := range episode.Annotations {
		if _, err := s.db.ExecContext(ctx, insertAnnotation,
			a.ID, episode.ID, a.Start, a.End, a.Surface, a.Reading); err != nil {
			return fmt.Errorf("failed to insert annotation: %w", err)
		}
	}

	insertQuestion := `
		INSERT INTO questions (id, episode_id, position, prompt, answer)
		VALUES ($1, $2, $3, $4, $5)
	`
	for _, q := range episode.Questions {
		if _, err := s.db.ExecContext(ctx, insertQuestion,
			q.ID, episode.ID, q.Position, q.Prompt, q.Answer); err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
	}

	log.Info("episode artifacts replaced",
		slog.String("episode_id", episode.ID.String()),
		slog.String("task_id", episode.TaskID.String()),
		slog.Int("annotations", len(episode.Annotations)),
		slog.Int("questions", len(episode.Questions)))
	return nil
}

// GetByID implements store.EpisodeStore.GetByID.
func (s *EpisodeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Episode, error) {
	return s.getOne(ctx, `WHERE id = $1`, id)
}

// GetByTaskID implements store.EpisodeStore.GetByTaskID.
func (s *EpisodeStore) GetByTaskID(ctx context.Context, taskID uuid.UUID) (*domain.Episode, error) {
	return s.getOne(ctx, `WHERE task_id = $1`, taskID)
}

// getOne loads a single episode plus its dependents.
func (s *EpisodeStore) getOne(ctx context.Context, where string, arg any) (*domain.Episode, error) {
	query := `SELECT id, task_id, profile_id, model, episode_date, title, theme,
		passage, annotated, created_at
		FROM episodes ` + where

	var e domain.Episode
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&e.ID, &e.TaskID, &e.ProfileID, &e.Model, &e.EpisodeDate,
		&e.Title, &e.Theme, &e.Passage, &e.Annotated, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrEpisodeNotFound
		}
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}

	if err := s.loadDependents(ctx, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByProfile implements store.EpisodeStore.ListByProfile.
func (s *EpisodeStore) ListByProfile(ctx context.Context, profileID uuid.UUID, limit int) ([]*domain.Episode, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, task_id, profile_id, model, episode_date, title, theme,
		passage, annotated, created_at
		FROM episodes
		WHERE profile_id = $1
		ORDER BY episode_date DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var episodes []*domain.Episode
	for rows.Next() {
		var e domain.Episode
		if err := rows.Scan(
			&e.ID, &e.TaskID, &e.ProfileID, &e.Model, &e.EpisodeDate,
			&e.Title, &e.Theme, &e.Passage, &e.Annotated, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan episode row: %w", err)
		}
		episodes = append(episodes, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating episode rows: %w", err)
	}

	for _, e := range episodes {
		if err := s.loadDependents(ctx, e); err != nil {
			return nil, err
		}
	}
	return episodes, nil
}

// loadDependents attaches annotations and questions to an episode.
func (s *EpisodeStore) loadDependents(ctx context.Context, e *domain.Episode) error {
	annotationRows, err := s.db.QueryContext(ctx,
		`SELECT id, episode_id, span_start, span_end, surface, reading
		 FROM annotations WHERE episode_id = $1 ORDER BY span_start ASC`, e.ID)
	if err != nil {
		return fmt.Errorf("failed to load annotations: %w", err)
	}
	defer func() { _ = annotationRows.Close() }()

	for annotationRows.Next() {
		var a domain.Annotation
		if err := annotationRows.Scan(&a.ID, &a.EpisodeID, &a.Start, &a.End, &a.Surface, &a.Reading); err != nil {
			return fmt.Errorf("failed to scan annotation row: %w", err)
		}
		e.Annotations = append(e.Annotations, a)
	}
	if err := annotationRows.Err(); err != nil {
		return fmt.Errorf("error iterating annotation rows: %w", err)
	}

	questionRows, err := s.db.QueryContext(ctx,
		`SELECT id, episode_id, position, prompt, answer
		 FROM questions WHERE episode_id = $1 ORDER BY position ASC`, e.ID)
	if err != nil {
		return fmt.Errorf("failed to load questions: %w", err)
	}
	defer func() { _ = questionRows.Close() }()

	for questionRows.Next() {
		var q domain.Question
		if err := questionRows.Scan(&q.ID, &q.EpisodeID, &q.Position, &q.Prompt, &q.Answer); err != nil {
			return fmt.Errorf("failed to scan question row: %w", err)
		}
		e.Questions = append(e.Questions, q)
	}
	return questionRows.Err()
}
