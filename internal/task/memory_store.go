package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/google/uuid"
)

// MemoryTaskStore implements TaskStore in memory. It honors the same
// conditional-write semantics as the PostgreSQL implementation, which makes it
// the store used by queue, runner and pipeline tests.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*Task

	// InsertHook, if set, runs before Insert applies; returning an error
	// aborts the insert. Lets tests inject store failures.
	InsertHook func(t *Task) error

	// CASHook, if set, runs inside the CompareAndSwap critical section before
	// the precondition check. Mutating the task here simulates a competing
	// writer that got in between candidate selection and the conditional
	// write, deterministically.
	CASHook func(t *Task)
}

// NewMemoryTaskStore creates an empty MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{
		tasks: make(map[uuid.UUID]*Task),
	}
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// Insert creates a new task row.
func (s *MemoryTaskStore) Insert(ctx context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.InsertHook != nil {
		if err := s.InsertHook(t); err != nil {
			return err
		}
	}

	for _, existing := range s.tasks {
		if existing.ProfileID == t.ProfileID && existing.TaskDate.Equal(t.TaskDate) {
			return store.ErrTaskExists
		}
	}

	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

// Get retrieves a task by ID.
func (s *MemoryTaskStore) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// ListByStatus returns tasks with the given status, oldest first.
func (s *MemoryTaskStore) ListByStatus(ctx context.Context, status Status) ([]*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.Status == status {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// CompareAndSwap applies patch iff the stored version matches.
func (s *MemoryTaskStore) CompareAndSwap(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int64,
	patch TaskPatch,
	now time.Time,
) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}

	if s.CASHook != nil {
		s.CASHook(t)
	}

	if t.Version != expectedVersion {
		return nil, store.ErrVersionConflict
	}

	if patch.RequireClaimable && !t.Claimable(now) {
		return nil, store.ErrVersionConflict
	}

	applyPatch(t, patch)
	t.Version++

	cp := *t
	return &cp, nil
}

// ActiveLeaseExists reports whether any task holds an unexpired lease.
func (s *MemoryTaskStore) ActiveLeaseExists(ctx context.Context, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.LeaseActive(now) {
			return true, nil
		}
	}
	return false, nil
}

// NextClaimable returns the oldest claimable task, or nil.
func (s *MemoryTaskStore) NextClaimable(ctx context.Context, now time.Time) (*Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best *Task
	for _, t := range s.tasks {
		if !t.Claimable(now) {
			continue
		}
		if best == nil || t.CreatedAt.Before(best.CreatedAt) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// ExtendLease moves locked_until forward for a running task.
func (s *MemoryTaskStore) ExtendLease(ctx context.Context, id uuid.UUID, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Status != StatusRunning {
		return ErrTaskNotRunning
	}

	u := until
	t.LockedUntil = &u
	return nil
}

// SaveCheckpoint replaces the checkpoint of a running task, conditioned on
// the holder's version.
func (s *MemoryTaskStore) SaveCheckpoint(ctx context.Context, id uuid.UUID, expectedVersion int64, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	if t.Status != StatusRunning {
		return ErrTaskNotRunning
	}
	if t.Version != expectedVersion {
		return store.ErrVersionConflict
	}

	if cp == nil {
		t.Checkpoint = nil
		return nil
	}
	c := *cp
	t.Checkpoint = &c
	return nil
}

// applyPatch mutates t according to patch. Callers hold the store lock.
func applyPatch(t *Task, patch TaskPatch) {
	if patch.Status != nil {
		t.Status = *patch.Status
	}

	if patch.ClearStartedAt {
		t.StartedAt = nil
	} else if patch.StartedAt != nil {
		v := *patch.StartedAt
		t.StartedAt = &v
	}

	if patch.ClearFinishedAt {
		t.FinishedAt = nil
	} else if patch.FinishedAt != nil {
		v := *patch.FinishedAt
		t.FinishedAt = &v
	}

	if patch.PublishedAt != nil {
		v := *patch.PublishedAt
		t.PublishedAt = &v
	}

	if patch.ClearLockedUntil {
		t.LockedUntil = nil
	} else if patch.LockedUntil != nil {
		v := *patch.LockedUntil
		t.LockedUntil = &v
	}

	if patch.ClearCheckpoint {
		t.Checkpoint = nil
	} else if patch.Checkpoint != nil {
		v := *patch.Checkpoint
		t.Checkpoint = &v
	}

	if patch.ClearError {
		t.ErrorMessage = ""
		t.ErrorContext = ""
	}
	if patch.ErrorMessage != nil {
		t.ErrorMessage = *patch.ErrorMessage
	}
	if patch.ErrorContext != nil {
		t.ErrorContext = *patch.ErrorContext
	}
}
