package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
)

// ProfileService provides reader-profile operations for the API layer.
type ProfileService interface {
	// CreateProfile validates and stores a new profile.
	CreateProfile(
		ctx context.Context,
		name string,
		level domain.ReadingLevel,
		topics []string,
		targetLength int,
		model string,
		dailyEnabled bool,
	) (*domain.Profile, error)

	// GetProfile retrieves a profile by ID.
	GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error)

	// ListActiveProfiles retrieves all profiles enrolled in daily generation.
	ListActiveProfiles(ctx context.Context) ([]*domain.Profile, error)
}

// profileServiceImpl implements the ProfileService interface.
type profileServiceImpl struct {
	profiles store.ProfileStore
	logger   *slog.Logger
}

// NewProfileService creates a new ProfileService.
func NewProfileService(profiles store.ProfileStore, logger *slog.Logger) (ProfileService, error) {
	if profiles == nil {
		return nil, &EpisodeServiceError{Operation: "create_service", Message: "profiles cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &profileServiceImpl{
		profiles: profiles,
		logger:   logger.With("component", "profile_service"),
	}, nil
}

// CreateProfile validates and stores a new profile.
func (s *profileServiceImpl) CreateProfile(
	ctx context.Context,
	name string,
	level domain.ReadingLevel,
	topics []string,
	targetLength int,
	model string,
	dailyEnabled bool,
) (*domain.Profile, error) {
	profile, err := domain.NewProfile(name, level, topics, targetLength, model)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	profile.DailyEnabled = dailyEnabled

	if err := s.profiles.Create(ctx, profile); err != nil {
		s.logger.Error("failed to create profile",
			"error", err,
			"name", name)
		return nil, newEpisodeServiceError("create_profile", "failed to store profile", err)
	}

	s.logger.Info("profile created",
		"profile_id", profile.ID,
		"level", profile.Level,
		"daily_enabled", profile.DailyEnabled)
	return profile, nil
}

// GetProfile retrieves a profile by ID.
func (s *profileServiceImpl) GetProfile(ctx context.Context, id uuid.UUID) (*domain.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, newEpisodeServiceError("get_profile", "failed to retrieve profile", err)
	}
	return profile, nil
}

// ListActiveProfiles retrieves all daily-enabled profiles.
func (s *profileServiceImpl) ListActiveProfiles(ctx context.Context) ([]*domain.Profile, error) {
	profiles, err := s.profiles.ListActive(ctx)
	if err != nil {
		return nil, newEpisodeServiceError("list_active_profiles", "failed to list profiles", err)
	}
	return profiles, nil
}
