package service

import (
	"context"
	"testing"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/mocks"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/dokusho-app/dokusho-api/internal/task"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type episodeServiceHarness struct {
	taskStore *task.MemoryTaskStore
	queue     *task.Queue
	profiles  *mocks.MemoryProfileStore
	episodes  *mocks.MemoryEpisodeStore
	service   EpisodeService
}

func newEpisodeServiceHarness(t *testing.T) *episodeServiceHarness {
	t.Helper()

	taskStore := task.NewMemoryTaskStore()
	queue := task.NewQueue(taskStore, task.DefaultQueueConfig(), nil)
	profiles := mocks.NewMemoryProfileStore()
	episodes := mocks.NewMemoryEpisodeStore()

	svc, err := NewEpisodeService(taskStore, queue, profiles, episodes, nil)
	require.NoError(t, err)

	return &episodeServiceHarness{
		taskStore: taskStore,
		queue:     queue,
		profiles:  profiles,
		episodes:  episodes,
		service:   svc,
	}
}

func (h *episodeServiceHarness) addProfile(t *testing.T, name string, dailyEnabled bool) *domain.Profile {
	t.Helper()

	profile, err := domain.NewProfile(name, domain.ReadingLevelIntermediate,
		[]string{"daily life"}, 400, "gemini-2.0-flash")
	require.NoError(t, err)
	profile.DailyEnabled = dailyEnabled
	require.NoError(t, h.profiles.Create(context.Background(), profile))
	return profile
}

func serviceDate() time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
}

func TestEnqueueForDate(t *testing.T) {
	t.Parallel()

	t.Run("one task per active profile", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)

		active1 := h.addProfile(t, "田中", true)
		active2 := h.addProfile(t, "鈴木", true)
		h.addProfile(t, "休止中", false)

		created, err := h.service.EnqueueForDate(context.Background(), serviceDate(), task.TriggerSchedule)
		require.NoError(t, err)
		require.Len(t, created, 2)

		profileIDs := map[uuid.UUID]bool{}
		for _, tk := range created {
			assert.Equal(t, task.StatusQueued, tk.Status)
			assert.Equal(t, task.TriggerSchedule, tk.TriggerSource)
			profileIDs[tk.ProfileID] = true
		}
		assert.True(t, profileIDs[active1.ID])
		assert.True(t, profileIDs[active2.ID])
	})

	t.Run("second run for the same date creates nothing", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)
		h.addProfile(t, "田中", true)

		first, err := h.service.EnqueueForDate(context.Background(), serviceDate(), task.TriggerSchedule)
		require.NoError(t, err)
		require.Len(t, first, 1)

		second, err := h.service.EnqueueForDate(context.Background(), serviceDate(), task.TriggerSchedule)
		require.NoError(t, err, "already-enqueued profiles are skipped, not an error")
		assert.Empty(t, second)
	})
}

func TestEnqueueForProfile(t *testing.T) {
	t.Parallel()

	t.Run("creates a queued manual task", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)
		profile := h.addProfile(t, "田中", false)

		created, err := h.service.EnqueueForProfile(context.Background(),
			profile.ID, serviceDate(), task.TriggerManual)
		require.NoError(t, err)
		assert.Equal(t, profile.ID, created.ProfileID)
		assert.Equal(t, task.TriggerManual, created.TriggerSource)
		assert.Equal(t, profile.Model, created.Model)
	})

	t.Run("duplicate date is rejected", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)
		profile := h.addProfile(t, "田中", false)

		_, err := h.service.EnqueueForProfile(context.Background(),
			profile.ID, serviceDate(), task.TriggerManual)
		require.NoError(t, err)

		_, err = h.service.EnqueueForProfile(context.Background(),
			profile.ID, serviceDate(), task.TriggerManual)
		assert.ErrorIs(t, err, store.ErrTaskExists)
	})

	t.Run("unknown profile", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)

		_, err := h.service.EnqueueForProfile(context.Background(),
			uuid.New(), serviceDate(), task.TriggerManual)
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})
}

func TestRetryTask(t *testing.T) {
	t.Parallel()

	t.Run("queued task is not retryable", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)
		profile := h.addProfile(t, "田中", false)

		created, err := h.service.EnqueueForProfile(context.Background(),
			profile.ID, serviceDate(), task.TriggerManual)
		require.NoError(t, err)

		_, err = h.service.RetryTask(context.Background(), created.ID, false)
		assert.ErrorIs(t, err, ErrTaskNotRetryable)
	})

	t.Run("unknown task", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)

		_, err := h.service.RetryTask(context.Background(), uuid.New(), false)
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})
}

func TestListTasksRejectsUnknownStatus(t *testing.T) {
	t.Parallel()
	h := newEpisodeServiceHarness(t)

	_, err := h.service.ListTasks(context.Background(), task.Status("everything"))
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestEpisodeLookups(t *testing.T) {
	t.Parallel()

	t.Run("missing episode", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)

		_, err := h.service.GetEpisode(context.Background(), uuid.New())
		assert.ErrorIs(t, err, ErrEpisodeNotFound)
	})

	t.Run("list for unknown profile", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)

		_, err := h.service.ListEpisodes(context.Background(), uuid.New(), 10)
		assert.ErrorIs(t, err, ErrProfileNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		t.Parallel()
		h := newEpisodeServiceHarness(t)
		profile := h.addProfile(t, "田中", false)

		for day := 1; day <= 3; day++ {
			episode := domain.NewEpisode(uuid.New(), profile.ID, profile.Model,
				time.Date(2025, 6, day, 0, 0, 0, 0, time.UTC))
			require.NoError(t, h.episodes.Replace(context.Background(), episode))
		}

		episodes, err := h.service.ListEpisodes(context.Background(), profile.ID, 2)
		require.NoError(t, err)
		require.Len(t, episodes, 2)
		assert.True(t, episodes[0].EpisodeDate.After(episodes[1].EpisodeDate))
	})
}
