package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
)

// ProfileStore implements store.ProfileStore using PostgreSQL.
type ProfileStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewProfileStore creates a ProfileStore over the given connection or
// transaction.
func NewProfileStore(db store.DBTX, logger *slog.Logger) *ProfileStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ProfileStore{
		db:     db,
		logger: logger.With(slog.String("component", "profile_store")),
	}
}

var _ store.ProfileStore = (*ProfileStore)(nil)

const profileColumns = `id, name, level, topics, target_length,
	model, daily_enabled, created_at, updated_at`

// Create implements store.ProfileStore.Create.
func (s *ProfileStore) Create(ctx context.Context, profile *domain.Profile) error {
	if err := profile.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	topics, err := json.Marshal(profile.Topics)
	if err != nil {
		return fmt.Errorf("failed to encode topics: %w", err)
	}

	query := `
		INSERT INTO profiles
			(id, name, level, topics, target_length,
			 model, daily_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = s.db.ExecContext(ctx, query,
		profile.ID, profile.Name, profile.Level,
		topics, profile.TargetLength,
		profile.Model, profile.DailyEnabled,
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID implements store.ProfileStore.GetByID.
func (s *ProfileStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	profile, err := scanProfile(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return profile, nil
}

// ListActive implements store.ProfileStore.ListActive: profiles enrolled in
// daily generation.
func (s *ProfileStore) ListActive(ctx context.Context) ([]*domain.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM profiles
		WHERE daily_enabled = TRUE
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var profiles []*domain.Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}
	return profiles, nil
}

func scanProfile(row rowScanner) (*domain.Profile, error) {
	var p domain.Profile
	var topics []byte
	err := row.Scan(
		&p.ID, &p.Name, &p.Level, &topics, &p.TargetLength,
		&p.Model, &p.DailyEnabled, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(topics) > 0 {
		if err := json.Unmarshal(topics, &p.Topics); err != nil {
			return nil, fmt.Errorf("failed to decode topics: %w", err)
		}
	}
	return &p, nil
}
