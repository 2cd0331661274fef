package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/generation"
	"github.com/dokusho-app/dokusho-api/internal/mocks"
	"github.com/dokusho-app/dokusho-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executorHarness wires an Executor over in-memory stores and a scripted
// generator, with one profile and one claimed task ready to execute.
type executorHarness struct {
	taskStore *task.MemoryTaskStore
	queue     *task.Queue
	generator *mocks.MockGenerator
	episodes  *mocks.MemoryEpisodeStore
	executor  *Executor
	profile   *domain.Profile
	claimed   *task.Task
}

func newExecutorHarness(t *testing.T) *executorHarness {
	t.Helper()

	taskStore := task.NewMemoryTaskStore()
	queue := task.NewQueue(taskStore, task.QueueConfig{
		LeaseDuration:   time.Hour,
		ClaimRetryLimit: 3,
	}, nil)

	profiles := mocks.NewMemoryProfileStore()
	profile, err := domain.NewProfile("田中", domain.ReadingLevelIntermediate,
		[]string{"daily life"}, 400, "gemini-2.0-flash")
	require.NoError(t, err)
	require.NoError(t, profiles.Create(context.Background(), profile))

	created, err := task.New(profile.ID, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		task.TriggerSchedule, profile.Model)
	require.NoError(t, err)
	require.NoError(t, taskStore.Insert(context.Background(), created))

	claimed, err := queue.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	generator := mocks.NewScriptedGenerator()
	episodes := mocks.NewMemoryEpisodeStore()

	return &executorHarness{
		taskStore: taskStore,
		queue:     queue,
		generator: generator,
		episodes:  episodes,
		executor:  NewExecutor(queue, generator, profiles, episodes, nil, time.Minute, nil),
		profile:   profile,
		claimed:   claimed,
	}
}

func (h *executorHarness) storedTask(t *testing.T) *task.Task {
	t.Helper()
	stored, err := h.taskStore.Get(context.Background(), h.claimed.ID)
	require.NoError(t, err)
	return stored
}

func TestExecuteFullRun(t *testing.T) {
	t.Parallel()
	h := newExecutorHarness(t)

	require.NoError(t, h.executor.Execute(context.Background(), h.claimed))

	stored := h.storedTask(t)
	assert.Equal(t, task.StatusSucceeded, stored.Status)
	assert.Nil(t, stored.LockedUntil)
	assert.NotNil(t, stored.FinishedAt)
	assert.NotNil(t, stored.PublishedAt)

	assert.Equal(t, 1, h.generator.Calls("GenerateOutline"))
	assert.Equal(t, 2, h.generator.Calls("GenerateSection"), "one call per outline section")
	assert.Equal(t, 1, h.generator.Calls("AnnotatePassage"))
	assert.Equal(t, 1, h.generator.Calls("GenerateQuiz"))

	episode, err := h.episodes.GetByTaskID(context.Background(), h.claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, h.profile.ID, episode.ProfileID)
	assert.Equal(t, "朝の散歩", episode.Title)
	assert.NotEmpty(t, episode.Passage)
	assert.NotEmpty(t, episode.Annotations)
	assert.Len(t, episode.Questions, questionCount)
}

func TestExecuteResumesFromCheckpoint(t *testing.T) {
	t.Parallel()
	h := newExecutorHarness(t)

	// A previous holder finished the passage stage before losing its lease.
	h.claimed.Checkpoint = &task.Checkpoint{
		Stage: task.StagePassage,
		Outline: &generation.Outline{
			Title:    "前回の題",
			Theme:    "再開",
			Sections: []generation.SectionPlan{{Heading: "一", Summary: "前半"}},
		},
		Passage: "前回までの本文です。",
	}

	require.NoError(t, h.executor.Execute(context.Background(), h.claimed))

	assert.Equal(t, 0, h.generator.Calls("GenerateOutline"), "completed stages must not rerun")
	assert.Equal(t, 0, h.generator.Calls("GenerateSection"))
	assert.Equal(t, 1, h.generator.Calls("AnnotatePassage"))
	assert.Equal(t, 1, h.generator.Calls("GenerateQuiz"))

	episode, err := h.episodes.GetByTaskID(context.Background(), h.claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, "前回の題", episode.Title)
	assert.Equal(t, "前回までの本文です。", episode.Passage)
	assert.Equal(t, task.StatusSucceeded, h.storedTask(t).Status)
}

func TestExecuteStageFailure(t *testing.T) {
	t.Parallel()
	h := newExecutorHarness(t)

	h.generator.GenerateQuizFn = func(ctx context.Context, req generation.QuizRequest) ([]generation.QuizQuestion, error) {
		return nil, fmt.Errorf("quiz call: %w", generation.ErrContentBlocked)
	}

	require.NoError(t, h.executor.Execute(context.Background(), h.claimed),
		"a stage failure is recorded, not propagated")

	stored := h.storedTask(t)
	assert.Equal(t, task.StatusFailed, stored.Status)
	assert.Nil(t, stored.LockedUntil)
	assert.NotEmpty(t, stored.ErrorMessage)
	assert.Contains(t, stored.ErrorContext, `"stage":"quiz"`)
	assert.Contains(t, stored.ErrorContext, `"kind":"blocked"`)

	// The checkpoint keeps the completed stages for inspection.
	require.NotNil(t, stored.Checkpoint)
	assert.Equal(t, task.StageAnnotate, stored.Checkpoint.Stage)

	assert.Equal(t, 0, h.episodes.Count(), "no artifacts on failure")
}

func TestExecuteAnnotationMismatchFails(t *testing.T) {
	t.Parallel()
	h := newExecutorHarness(t)

	h.generator.AnnotatePassageFn = func(ctx context.Context, req generation.AnnotateRequest) (string, error) {
		// Rewrites the passage instead of annotating it in place.
		return "[違う本文|よみ]", nil
	}

	require.NoError(t, h.executor.Execute(context.Background(), h.claimed))

	stored := h.storedTask(t)
	assert.Equal(t, task.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorContext, `"stage":"annotate"`)
	assert.Contains(t, stored.ErrorContext, `"kind":"integrity"`)
	require.NotNil(t, stored.Checkpoint)
	assert.Equal(t, task.StagePassage, stored.Checkpoint.Stage, "annotate output is never checkpointed unverified")
}

func TestExecuteShutdownLeavesTaskRunning(t *testing.T) {
	t.Parallel()
	h := newExecutorHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	h.generator.AnnotatePassageFn = func(callCtx context.Context, req generation.AnnotateRequest) (string, error) {
		// Shutdown arrives mid-stage.
		cancel()
		return "", callCtx.Err()
	}

	require.NoError(t, h.executor.Execute(ctx, h.claimed))

	stored := h.storedTask(t)
	assert.Equal(t, task.StatusRunning, stored.Status,
		"shutdown must not turn into a failed task")
	assert.Empty(t, stored.ErrorMessage)
	require.NotNil(t, stored.Checkpoint)
	assert.Equal(t, task.StagePassage, stored.Checkpoint.Stage,
		"completed stages stay checkpointed for the next holder")
	assert.Equal(t, 0, h.episodes.Count())
}

func TestExecuteRerunReplacesArtifacts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	taskStore := task.NewMemoryTaskStore()
	// A lease this short lapses immediately, so a second worker can reclaim
	// the task after the first one loses its completion write.
	queue := task.NewQueue(taskStore, task.QueueConfig{
		LeaseDuration:   time.Nanosecond,
		ClaimRetryLimit: 3,
	}, nil)

	profiles := mocks.NewMemoryProfileStore()
	profile, err := domain.NewProfile("田中", domain.ReadingLevelIntermediate,
		[]string{"daily life"}, 400, "gemini-2.0-flash")
	require.NoError(t, err)
	require.NoError(t, profiles.Create(ctx, profile))

	created, err := task.New(profile.ID, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		task.TriggerSchedule, profile.Model)
	require.NoError(t, err)
	require.NoError(t, taskStore.Insert(ctx, created))

	generator := mocks.NewScriptedGenerator()
	episodes := mocks.NewMemoryEpisodeStore()
	executor := NewExecutor(queue, generator, profiles, episodes, nil, time.Minute, nil)

	first, err := queue.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	// The first run persists its artifacts but loses the terminal write to a
	// competing version bump.
	taskStore.CASHook = func(victim *task.Task) { victim.Version++ }
	require.NoError(t, executor.Execute(ctx, first))
	require.Equal(t, 1, episodes.Count())
	taskStore.CASHook = nil

	// The task is still running with a lapsed lease; the next worker
	// reclaims it and runs it to completion.
	second, err := queue.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, first.ID, second.ID)

	require.NoError(t, executor.Execute(ctx, second))

	stored, err := taskStore.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, stored.Status)

	assert.Equal(t, 1, episodes.Count(),
		"replace semantics must leave exactly one artifact set after a rerun")
	assert.Equal(t, 1, generator.Calls("GenerateOutline"),
		"the rerun resumes from the checkpoint, not from scratch")
}

func TestExecuteToleratesLostCompletion(t *testing.T) {
	t.Parallel()
	h := newExecutorHarness(t)

	// Simulate another worker reclaiming the task: every conditional write
	// from here on sees a bumped version.
	h.taskStore.CASHook = func(victim *task.Task) {
		victim.Version++
	}

	require.NoError(t, h.executor.Execute(context.Background(), h.claimed),
		"losing the terminal write to a reclaim is not an executor error")

	episode, err := h.episodes.GetByTaskID(context.Background(), h.claimed.ID)
	require.NoError(t, err)
	assert.NotNil(t, episode, "artifacts were written before the conflict; the new holder rewrites them")
}
