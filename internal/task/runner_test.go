package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingExecutor records executed tasks and moves them to succeeded.
type recordingExecutor struct {
	queue *Queue

	mu       sync.Mutex
	executed []uuid.UUID
	done     chan struct{}
}

func newRecordingExecutor(queue *Queue, expect int) *recordingExecutor {
	return &recordingExecutor{
		queue: queue,
		done:  make(chan struct{}, expect),
	}
}

func (e *recordingExecutor) Execute(ctx context.Context, t *Task) error {
	e.mu.Lock()
	e.executed = append(e.executed, t.ID)
	e.mu.Unlock()

	_, err := e.queue.Complete(ctx, t)
	e.done <- struct{}{}
	return err
}

func (e *recordingExecutor) executedIDs() []uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]uuid.UUID(nil), e.executed...)
}

func waitFor(t *testing.T, ch <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for execution %d of %d", i+1, n)
		}
	}
}

func TestRunnerDrainsBacklogInOrder(t *testing.T) {
	t.Parallel()

	memStore := NewMemoryTaskStore()
	queue := NewQueue(memStore, DefaultQueueConfig(), nil)

	base := time.Now().UTC().Add(-time.Hour)
	var want []uuid.UUID
	for i := 0; i < 3; i++ {
		created, err := New(uuid.New(), testDate().AddDate(0, 0, i), TriggerSchedule, "gemini-2.0-flash")
		require.NoError(t, err)
		created.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, memStore.Insert(context.Background(), created))
		want = append(want, created.ID)
	}

	executor := newRecordingExecutor(queue, 3)
	runner := NewRunner(queue, executor, RunnerConfig{
		PollInterval:      10 * time.Millisecond,
		KeepAliveInterval: time.Hour, // irrelevant here
	}, nil)

	runner.Start()
	waitFor(t, executor.done, 3)
	runner.Stop()

	assert.Equal(t, want, executor.executedIDs(), "backlog must drain oldest first")

	for _, id := range want {
		stored, err := memStore.Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, stored.Status)
	}
}

func TestRunnerRenewsLease(t *testing.T) {
	t.Parallel()

	memStore := NewMemoryTaskStore()
	queue := NewQueue(memStore, QueueConfig{LeaseDuration: time.Hour, ClaimRetryLimit: 3}, nil)

	created, err := New(uuid.New(), testDate(), TriggerSchedule, "gemini-2.0-flash")
	require.NoError(t, err)
	require.NoError(t, memStore.Insert(context.Background(), created))

	renewed := make(chan struct{}, 1)
	blockExec := make(chan struct{})

	executor := executorFunc(func(ctx context.Context, tk *Task) error {
		// Hold the task long enough for at least one keep-alive tick, then
		// observe that the lease moved.
		before, err := memStore.Get(ctx, tk.ID)
		if err != nil {
			close(blockExec)
			return err
		}

		deadline := time.After(5 * time.Second)
		for {
			select {
			case <-deadline:
				t.Error("lease never renewed")
				close(blockExec)
				return nil
			case <-time.After(20 * time.Millisecond):
			}
			after, err := memStore.Get(ctx, tk.ID)
			if err != nil {
				close(blockExec)
				return err
			}
			if after.LockedUntil.After(*before.LockedUntil) {
				renewed <- struct{}{}
				close(blockExec)
				_, err = queue.Complete(ctx, tk)
				return err
			}
		}
	})

	runner := NewRunner(queue, executor, RunnerConfig{
		PollInterval:      10 * time.Millisecond,
		KeepAliveInterval: 25 * time.Millisecond,
	}, nil)

	runner.Start()
	select {
	case <-renewed:
	case <-time.After(6 * time.Second):
		t.Fatal("timed out waiting for lease renewal")
	}
	<-blockExec
	runner.Stop()
}

// executorFunc adapts a function to the Executor interface.
type executorFunc func(ctx context.Context, t *Task) error

func (f executorFunc) Execute(ctx context.Context, t *Task) error {
	return f(ctx, t)
}
