package service

import (
	"context"
	"testing"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/mocks"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfileService(t *testing.T) (ProfileService, *mocks.MemoryProfileStore) {
	t.Helper()

	profiles := mocks.NewMemoryProfileStore()
	svc, err := NewProfileService(profiles, nil)
	require.NoError(t, err)
	return svc, profiles
}

func TestCreateProfile(t *testing.T) {
	t.Parallel()

	t.Run("valid profile", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestProfileService(t)

		profile, err := svc.CreateProfile(context.Background(),
			"田中", domain.ReadingLevelBeginner, []string{"travel"}, 300, "gemini-2.0-flash", true)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, profile.ID)
		assert.True(t, profile.DailyEnabled)
	})

	t.Run("validation failures map to invalid entity", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestProfileService(t)

		_, err := svc.CreateProfile(context.Background(),
			"", domain.ReadingLevelBeginner, nil, 300, "gemini-2.0-flash", true)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)

		_, err = svc.CreateProfile(context.Background(),
			"田中", domain.ReadingLevel("fluent"), nil, 300, "gemini-2.0-flash", true)
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestGetProfile(t *testing.T) {
	t.Parallel()
	svc, _ := newTestProfileService(t)

	_, err := svc.GetProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestListActiveProfiles(t *testing.T) {
	t.Parallel()
	svc, _ := newTestProfileService(t)

	enabled, err := svc.CreateProfile(context.Background(),
		"毎日", domain.ReadingLevelIntermediate, nil, 400, "gemini-2.0-flash", true)
	require.NoError(t, err)
	_, err = svc.CreateProfile(context.Background(),
		"休止", domain.ReadingLevelIntermediate, nil, 400, "gemini-2.0-flash", false)
	require.NoError(t, err)

	active, err := svc.ListActiveProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, enabled.ID, active[0].ID)
}
