package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
)

// QueueConfig holds the lease manager tunables.
type QueueConfig struct {
	// LeaseDuration is how long a claim remains exclusive without renewal.
	// Too short risks duplicate execution of expensive stages; too long
	// delays crash recovery.
	LeaseDuration time.Duration

	// ClaimRetryLimit bounds the claim loop when a CAS loses a race.
	// Losing a race is expected, not an error; the bound prevents livelock
	// under contention.
	ClaimRetryLimit int
}

// DefaultQueueConfig returns a QueueConfig with reasonable defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		LeaseDuration:   10 * time.Minute,
		ClaimRetryLimit: 3,
	}
}

// Queue is the lease manager: it hands out at most one active lease
// system-wide, lets the holder extend it, and moves tasks to their terminal
// states. All mutation goes through the store's version-gated writes, so any
// number of worker processes can share one Queue's store without further
// coordination.
type Queue struct {
	store  TaskStore
	config QueueConfig
	logger *slog.Logger

	// now is the clock, injectable for tests.
	now func() time.Time
}

// NewQueue creates a Queue over the given store.
// If logger is nil, the default logger is used.
func NewQueue(taskStore TaskStore, config QueueConfig, logger *slog.Logger) *Queue {
	if taskStore == nil {
		panic("task store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.LeaseDuration <= 0 {
		config.LeaseDuration = DefaultQueueConfig().LeaseDuration
	}
	if config.ClaimRetryLimit <= 0 {
		config.ClaimRetryLimit = DefaultQueueConfig().ClaimRetryLimit
	}

	return &Queue{
		store:  taskStore,
		config: config,
		logger: logger.With(slog.String("component", "task_queue")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Claim attempts to take the lease on the oldest claimable task.
//
// It returns (nil, nil) when the single-flight slot is occupied, when there is
// nothing claimable, or when every CAS attempt lost a race within the retry
// limit. A lost race means another worker took the work, which is the
// intended outcome, not a failure.
func (q *Queue) Claim(ctx context.Context) (*Task, error) {
	for attempt := 0; attempt < q.config.ClaimRetryLimit; attempt++ {
		now := q.now()

		// Re-evaluate occupancy on every attempt: the worker that beat us to
		// the candidate now holds the lease, and looping straight back into
		// candidate selection would spin for nothing.
		occupied, err := q.store.ActiveLeaseExists(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("failed to check lease occupancy: %w", err)
		}
		if occupied {
			return nil, nil
		}

		candidate, err := q.store.NextClaimable(ctx, now)
		if err != nil {
			return nil, fmt.Errorf("failed to find claimable task: %w", err)
		}
		if candidate == nil {
			return nil, nil
		}

		claimed, err := q.tryClaim(ctx, candidate, now)
		if err != nil {
			if store.IsVersionConflict(err) {
				q.logger.Debug("lost claim race, retrying",
					slog.String("task_id", candidate.ID.String()),
					slog.Int("attempt", attempt+1))
				continue
			}
			return nil, err
		}

		q.logger.Info("claimed task",
			slog.String("task_id", claimed.ID.String()),
			slog.String("profile_id", claimed.ProfileID.String()),
			slog.Int64("version", claimed.Version),
			slog.Time("locked_until", *claimed.LockedUntil))
		return claimed, nil
	}

	return nil, nil
}

// tryClaim performs the claim CAS against one candidate.
func (q *Queue) tryClaim(ctx context.Context, candidate *Task, now time.Time) (*Task, error) {
	running := StatusRunning
	until := now.Add(q.config.LeaseDuration)

	return q.store.CompareAndSwap(ctx, candidate.ID, candidate.Version, TaskPatch{
		Status:           &running,
		StartedAt:        &now,
		LockedUntil:      &until,
		ClearError:       true,
		RequireClaimable: true,
	}, now)
}

// KeepAlive extends the lease of a running task by the full lease duration
// from now. The executor calls this at a cadence well under the lease
// duration so normal execution never lets the lease lapse.
func (q *Queue) KeepAlive(ctx context.Context, id uuid.UUID) error {
	until := q.now().Add(q.config.LeaseDuration)
	if err := q.store.ExtendLease(ctx, id, until); err != nil {
		return fmt.Errorf("failed to extend lease: %w", err)
	}
	return nil
}

// SaveCheckpoint persists the checkpoint for a claimed task as a full
// replacement. Called by the executor after each completed stage. The write
// is conditioned on the version the caller holds from Claim, so a holder
// whose task was reclaimed after its lease lapsed gets a version conflict
// instead of regressing the new holder's checkpoint.
func (q *Queue) SaveCheckpoint(ctx context.Context, t *Task, cp *Checkpoint) error {
	if cp != nil {
		if err := cp.Validate(); err != nil {
			return fmt.Errorf("refusing to save inconsistent checkpoint: %w", err)
		}
	}
	if err := q.store.SaveCheckpoint(ctx, t.ID, t.Version, cp); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Complete transitions a claimed task to succeeded, releasing the lease and
// recording the finish and publish timestamps. The write is conditioned on
// the version the caller holds from Claim.
func (q *Queue) Complete(ctx context.Context, t *Task) (*Task, error) {
	now := q.now()
	succeeded := StatusSucceeded

	updated, err := q.store.CompareAndSwap(ctx, t.ID, t.Version, TaskPatch{
		Status:           &succeeded,
		FinishedAt:       &now,
		PublishedAt:      &now,
		ClearLockedUntil: true,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}

	q.logger.Info("task succeeded",
		slog.String("task_id", t.ID.String()),
		slog.Int64("version", updated.Version))
	return updated, nil
}

// Fail transitions a claimed task to failed with diagnostic detail, releasing
// the lease. The checkpoint from the last completed stage stays on the row so
// a retry resumes past the completed stages.
func (q *Queue) Fail(ctx context.Context, t *Task, message, errorContext string) (*Task, error) {
	now := q.now()
	failed := StatusFailed

	updated, err := q.store.CompareAndSwap(ctx, t.ID, t.Version, TaskPatch{
		Status:           &failed,
		FinishedAt:       &now,
		ClearLockedUntil: true,
		ErrorMessage:     &message,
		ErrorContext:     &errorContext,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark task failed: %w", err)
	}

	q.logger.Warn("task failed",
		slog.String("task_id", t.ID.String()),
		slog.String("error_message", message))
	return updated, nil
}

// Retry puts a failed task back in the queue, clearing its error fields. By
// default the checkpoint stays, so the next execution resumes after the last
// completed stage; fresh additionally discards the checkpoint and is the only
// supported rerun-from-nothing path.
func (q *Queue) Retry(ctx context.Context, id uuid.UUID, fresh bool) (*Task, error) {
	t, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load task for retry: %w", err)
	}

	if t.Status != StatusFailed {
		return nil, ErrTaskNotRetryable
	}

	now := q.now()
	queued := StatusQueued

	updated, err := q.store.CompareAndSwap(ctx, t.ID, t.Version, TaskPatch{
		Status:           &queued,
		ClearStartedAt:   true,
		ClearFinishedAt:  true,
		ClearLockedUntil: true,
		ClearCheckpoint:  fresh,
		ClearError:       true,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reset task for retry: %w", err)
	}

	q.logger.Info("task reset for retry",
		slog.String("task_id", id.String()),
		slog.Bool("fresh", fresh),
		slog.Int64("version", updated.Version))
	return updated, nil
}
