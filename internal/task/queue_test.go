package task

import (
	"context"
	"testing"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// queueHarness bundles a queue, its store and a controllable clock.
type queueHarness struct {
	store *MemoryTaskStore
	queue *Queue
	now   time.Time
}

func newQueueHarness(t *testing.T) *queueHarness {
	t.Helper()

	h := &queueHarness{
		store: NewMemoryTaskStore(),
		now:   time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	h.queue = NewQueue(h.store, QueueConfig{LeaseDuration: 10 * time.Minute, ClaimRetryLimit: 3}, nil)
	h.queue.now = func() time.Time { return h.now }
	return h
}

func (h *queueHarness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *queueHarness) insertTask(t *testing.T, createdAt time.Time) *Task {
	t.Helper()

	created, err := New(uuid.New(), testDate().AddDate(0, 0, len(h.store.tasks)), TriggerSchedule, "gemini-2.0-flash")
	require.NoError(t, err)
	created.CreatedAt = createdAt
	require.NoError(t, h.store.Insert(context.Background(), created))
	return created
}

func TestClaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("claims oldest queued task", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		older := h.insertTask(t, h.now.Add(-2*time.Hour))
		h.insertTask(t, h.now.Add(-time.Hour))

		claimed, err := h.queue.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, claimed)

		assert.Equal(t, older.ID, claimed.ID)
		assert.Equal(t, StatusRunning, claimed.Status)
		assert.Equal(t, int64(1), claimed.Version)
		require.NotNil(t, claimed.LockedUntil)
		assert.Equal(t, h.now.Add(10*time.Minute), *claimed.LockedUntil)
		require.NotNil(t, claimed.StartedAt)
	})

	t.Run("empty queue yields nothing", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		claimed, err := h.queue.Claim(ctx)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})

	t.Run("active lease blocks any further claim", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		h.insertTask(t, h.now.Add(-2*time.Hour))
		h.insertTask(t, h.now.Add(-time.Hour))

		first, err := h.queue.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, first)

		second, err := h.queue.Claim(ctx)
		require.NoError(t, err)
		assert.Nil(t, second, "single-flight: second claim must come back empty")
	})

	t.Run("expired lease is reclaimable with a version bump", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		h.insertTask(t, h.now.Add(-time.Hour))

		first, err := h.queue.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, int64(1), first.Version)

		// Lease lapses with no keep-alive: presumed crash.
		h.advance(11 * time.Minute)

		second, err := h.queue.Claim(ctx)
		require.NoError(t, err)
		require.NotNil(t, second)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, int64(2), second.Version,
			"reclaim must advance the version so the crashed worker's writes go stale")
	})

	t.Run("stale holder writes are rejected after reclaim", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		h.insertTask(t, h.now.Add(-time.Hour))

		first, err := h.queue.Claim(ctx)
		require.NoError(t, err)

		h.advance(11 * time.Minute)
		_, err = h.queue.Claim(ctx)
		require.NoError(t, err)

		// The crashed worker wakes up and tries to finish with its old version.
		_, err = h.queue.Complete(ctx, first)
		assert.True(t, store.IsVersionConflict(err))
	})

	t.Run("lost race retries and claims on a later attempt", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		victim := h.insertTask(t, h.now.Add(-2*time.Hour))
		h.insertTask(t, h.now.Add(-time.Hour))

		// A competing worker bumps the candidate's version between selection
		// and CAS, exactly once.
		raced := false
		h.store.CASHook = func(tk *Task) {
			if !raced && tk.ID == victim.ID {
				raced = true
				tk.Version++
			}
		}

		claimed, err := h.queue.Claim(ctx)
		require.NoError(t, err)

		// The interleaved bump makes the first CAS fail; the retry loop
		// re-checks occupancy and selects again.
		require.NotNil(t, claimed)
		assert.True(t, raced)
	})

	t.Run("retry limit exhausts to empty", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		h.insertTask(t, h.now.Add(-time.Hour))

		// Every CAS attempt loses its race.
		h.store.CASHook = func(tk *Task) { tk.Version++ }

		claimed, err := h.queue.Claim(ctx)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})
}

func TestKeepAlive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newQueueHarness(t)
	h.insertTask(t, h.now.Add(-time.Hour))

	claimed, err := h.queue.Claim(ctx)
	require.NoError(t, err)

	h.advance(5 * time.Minute)
	require.NoError(t, h.queue.KeepAlive(ctx, claimed.ID))

	stored, err := h.store.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, h.now.Add(10*time.Minute), *stored.LockedUntil)

	// A task that is not running cannot renew.
	_, err = h.queue.Complete(ctx, claimed)
	require.NoError(t, err)
	err = h.queue.KeepAlive(ctx, claimed.ID)
	assert.ErrorIs(t, err, ErrTaskNotRunning)
}

func TestSaveCheckpoint(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newQueueHarness(t)
	h.insertTask(t, h.now.Add(-time.Hour))

	claimed, err := h.queue.Claim(ctx)
	require.NoError(t, err)

	t.Run("valid checkpoint persists", func(t *testing.T) {
		cp := &Checkpoint{Stage: StageOutline, Outline: testOutline()}
		require.NoError(t, h.queue.SaveCheckpoint(ctx, claimed, cp))

		stored, err := h.store.Get(ctx, claimed.ID)
		require.NoError(t, err)
		require.NotNil(t, stored.Checkpoint)
		assert.Equal(t, StageOutline, stored.Checkpoint.Stage)
	})

	t.Run("later checkpoint replaces whole", func(t *testing.T) {
		cp := &Checkpoint{Stage: StagePassage, Outline: testOutline(), Passage: "本文"}
		require.NoError(t, h.queue.SaveCheckpoint(ctx, claimed, cp))

		stored, err := h.store.Get(ctx, claimed.ID)
		require.NoError(t, err)
		assert.Equal(t, StagePassage, stored.Checkpoint.Stage)
		assert.Equal(t, "本文", stored.Checkpoint.Passage)
	})

	t.Run("inconsistent checkpoint is refused", func(t *testing.T) {
		cp := &Checkpoint{Stage: StageQuiz, Outline: testOutline()}
		err := h.queue.SaveCheckpoint(ctx, claimed, cp)
		assert.Error(t, err)
	})
}

func TestSaveCheckpointAfterReclaim(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newQueueHarness(t)
	h.insertTask(t, h.now.Add(-time.Hour))

	first, err := h.queue.Claim(ctx)
	require.NoError(t, err)

	// The lease lapses mid-stage and another worker reclaims, then makes
	// further progress.
	h.advance(11 * time.Minute)
	second, err := h.queue.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	require.Equal(t, first.ID, second.ID)

	advanced := &Checkpoint{Stage: StagePassage, Outline: testOutline(), Passage: "本文"}
	require.NoError(t, h.queue.SaveCheckpoint(ctx, second, advanced))

	// The original holder wakes up and tries to write its earlier stage.
	stale := &Checkpoint{Stage: StageOutline, Outline: testOutline()}
	err = h.queue.SaveCheckpoint(ctx, first, stale)
	assert.True(t, store.IsVersionConflict(err),
		"stale holder's checkpoint write must be rejected")

	stored, err := h.store.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Checkpoint)
	assert.Equal(t, StagePassage, stored.Checkpoint.Stage,
		"checkpoint stage must never regress")
}

func TestComplete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newQueueHarness(t)
	h.insertTask(t, h.now.Add(-time.Hour))

	claimed, err := h.queue.Claim(ctx)
	require.NoError(t, err)

	done, err := h.queue.Complete(ctx, claimed)
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, done.Status)
	assert.Nil(t, done.LockedUntil, "completion must release the lease")
	require.NotNil(t, done.FinishedAt)
	require.NotNil(t, done.PublishedAt)
	assert.Equal(t, claimed.Version+1, done.Version)
}

func TestFail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newQueueHarness(t)
	h.insertTask(t, h.now.Add(-time.Hour))

	claimed, err := h.queue.Claim(ctx)
	require.NoError(t, err)

	cp := &Checkpoint{Stage: StageOutline, Outline: testOutline()}
	require.NoError(t, h.queue.SaveCheckpoint(ctx, claimed, cp))

	failed, err := h.queue.Fail(ctx, claimed, "annotation diverged", `{"stage":"annotate"}`)
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, failed.Status)
	assert.Nil(t, failed.LockedUntil)
	assert.Equal(t, "annotation diverged", failed.ErrorMessage)
	require.NotNil(t, failed.Checkpoint, "failure must preserve the checkpoint for inspection")
	assert.Equal(t, StageOutline, failed.Checkpoint.Stage)
}

func TestRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	failTask := func(t *testing.T, h *queueHarness) *Task {
		t.Helper()
		h.insertTask(t, h.now.Add(-time.Hour))
		claimed, err := h.queue.Claim(ctx)
		require.NoError(t, err)
		cp := &Checkpoint{Stage: StageOutline, Outline: testOutline()}
		require.NoError(t, h.queue.SaveCheckpoint(ctx, claimed, cp))
		failed, err := h.queue.Fail(ctx, claimed, "boom", "")
		require.NoError(t, err)
		return failed
	}

	t.Run("default retry keeps the checkpoint", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		failed := failTask(t, h)

		reset, err := h.queue.Retry(ctx, failed.ID, false)
		require.NoError(t, err)

		assert.Equal(t, StatusQueued, reset.Status)
		require.NotNil(t, reset.Checkpoint, "retry must resume past completed stages")
		assert.Equal(t, StageOutline, reset.Checkpoint.Stage)
		assert.Nil(t, reset.StartedAt)
		assert.Nil(t, reset.FinishedAt)
		assert.Nil(t, reset.LockedUntil)
		assert.Empty(t, reset.ErrorMessage)
		assert.Greater(t, reset.Version, failed.Version)
	})

	t.Run("fresh retry discards the checkpoint", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		failed := failTask(t, h)

		reset, err := h.queue.Retry(ctx, failed.ID, true)
		require.NoError(t, err)

		assert.Equal(t, StatusQueued, reset.Status)
		assert.Nil(t, reset.Checkpoint, "fresh retry reruns from the first stage")
	})

	t.Run("non-failed task is not retryable", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		queued := h.insertTask(t, h.now.Add(-time.Hour))

		_, err := h.queue.Retry(ctx, queued.ID, false)
		assert.ErrorIs(t, err, ErrTaskNotRetryable)
	})

	t.Run("unknown task", func(t *testing.T) {
		t.Parallel()

		h := newQueueHarness(t)
		_, err := h.queue.Retry(ctx, uuid.New(), false)
		assert.ErrorIs(t, err, store.ErrTaskNotFound)
	})
}

func TestVersionMonotonicity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	h := newQueueHarness(t)
	h.insertTask(t, h.now.Add(-time.Hour))

	claimed, err := h.queue.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), claimed.Version)

	failed, err := h.queue.Fail(ctx, claimed, "x", "")
	require.NoError(t, err)
	require.Equal(t, int64(2), failed.Version)

	reset, err := h.queue.Retry(ctx, failed.ID, false)
	require.NoError(t, err)
	require.Equal(t, int64(3), reset.Version)

	reclaimed, err := h.queue.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(4), reclaimed.Version)
}
