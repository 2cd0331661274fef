package task

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TaskPatch describes the fields a conditional write may change. Nil pointer
// fields are left untouched; the explicit Clear flags distinguish "set to
// null" from "leave alone" for nullable columns.
type TaskPatch struct {
	Status *Status

	StartedAt      *time.Time
	ClearStartedAt bool

	FinishedAt      *time.Time
	ClearFinishedAt bool
	PublishedAt     *time.Time

	LockedUntil      *time.Time
	ClearLockedUntil bool

	Checkpoint      *Checkpoint
	ClearCheckpoint bool

	ErrorMessage *string
	ErrorContext *string
	ClearError   bool

	// RequireClaimable adds the claim precondition on top of the version
	// check: status = queued OR (status = running AND locked_until <= now).
	// Claims must set this so a fresh lease can never steal an active one.
	RequireClaimable bool
}

// TaskStore defines the conditional read/write primitives over task rows.
// It carries no business rules; claim ordering, lease policy and retry
// semantics live in the Queue.
//
// Implementations must make CompareAndSwap atomic with respect to concurrent
// callers: of any set of racing writes conditioned on the same version,
// exactly one succeeds.
type TaskStore interface {
	// Insert creates a new task row. The task must be in StatusQueued with
	// Version zero. Returns store.ErrTaskExists if a task for the same
	// profile and date already exists.
	Insert(ctx context.Context, t *Task) error

	// Get retrieves a task by ID. Returns store.ErrTaskNotFound if absent.
	Get(ctx context.Context, id uuid.UUID) (*Task, error)

	// ListByStatus returns tasks with the given status, oldest first.
	ListByStatus(ctx context.Context, status Status) ([]*Task, error)

	// CompareAndSwap applies patch and increments the version, but only if
	// the stored version equals expectedVersion (and, when
	// patch.RequireClaimable is set, the row is claimable at now).
	// Returns the updated task, or store.ErrVersionConflict when the
	// precondition failed.
	CompareAndSwap(ctx context.Context, id uuid.UUID, expectedVersion int64, patch TaskPatch, now time.Time) (*Task, error)

	// ActiveLeaseExists reports whether any task is running with an
	// unexpired lease at the given instant. This is the queue's global
	// single-flight occupancy check, expressed as a derived query so that it
	// survives restarts and spans worker processes.
	ActiveLeaseExists(ctx context.Context, now time.Time) (bool, error)

	// NextClaimable returns the oldest claimable task at the given instant
	// (queued, or running with an expired lease), ordered by creation time,
	// or nil if there is none.
	NextClaimable(ctx context.Context, now time.Time) (*Task, error)

	// ExtendLease moves locked_until forward for a running task without
	// touching the version. Returns store.ErrTaskNotFound if the task does
	// not exist and ErrTaskNotRunning if it is not running. Renewal is not
	// safety-critical the way claiming is: only the lease holder calls it.
	ExtendLease(ctx context.Context, id uuid.UUID, until time.Time) error

	// SaveCheckpoint replaces the checkpoint of a running task without
	// bumping the version. The write is a full replacement of the
	// checkpoint payload and is conditioned on expectedVersion, so a holder
	// whose lease lapsed and whose task was reclaimed cannot overwrite the
	// new holder's progress. Returns ErrTaskNotRunning if the task is no
	// longer running and store.ErrVersionConflict if it was reclaimed.
	SaveCheckpoint(ctx context.Context, id uuid.UUID, expectedVersion int64, cp *Checkpoint) error
}
