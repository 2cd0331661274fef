package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/platform/logger"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/dokusho-app/dokusho-api/internal/task"
	"github.com/google/uuid"
)

// taskColumns is the column list every task query selects, in scan order.
const taskColumns = `id, profile_id, trigger_source, task_date, model, status, version,
	checkpoint, error_message, error_context,
	created_at, started_at, finished_at, published_at, locked_until`

// TaskStore implements task.TaskStore using PostgreSQL.
type TaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewTaskStore creates a TaskStore over the given connection or transaction.
// If logger is nil, a default logger is used.
func NewTaskStore(db store.DBTX, logger *slog.Logger) *TaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ task.TaskStore = (*TaskStore)(nil)

// Insert implements task.TaskStore.Insert.
func (s *TaskStore) Insert(ctx context.Context, t *task.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	checkpoint, err := encodeCheckpoint(t.Checkpoint)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO generation_tasks
			(id, profile_id, trigger_source, task_date, model, status, version,
			 checkpoint, error_message, error_context,
			 created_at, started_at, finished_at, published_at, locked_until)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err = s.db.ExecContext(ctx, query,
		t.ID, t.ProfileID, t.TriggerSource, t.TaskDate, t.Model, t.Status, t.Version,
		checkpoint, nullString(t.ErrorMessage), nullString(t.ErrorContext),
		t.CreatedAt, t.StartedAt, t.FinishedAt, t.PublishedAt, t.LockedUntil,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrTaskExists
		}
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: profile %s not found", store.ErrInvalidEntity, t.ProfileID)
		}
		log.Error("failed to insert task",
			slog.String("task_id", t.ID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to insert task: %w", err)
	}

	return nil
}

// Get implements task.TaskStore.Get.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM generation_tasks WHERE id = $1`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListByStatus implements task.TaskStore.ListByStatus.
func (s *TaskStore) ListByStatus(ctx context.Context, status task.Status) ([]*task.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE status = $1
		ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks by status: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating task rows: %w", err)
	}

	return tasks, nil
}

// CompareAndSwap implements task.TaskStore.CompareAndSwap. The UPDATE is
// conditioned on the stored version (and the claimable predicate when
// requested) so that of any set of racing writers exactly one succeeds.
func (s *TaskStore) CompareAndSwap(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int64,
	patch task.TaskPatch,
	now time.Time,
) (*task.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	sets, args, err := buildPatchSQL(patch)
	if err != nil {
		return nil, err
	}

	// $1 = id, $2 = expected version; patch args follow.
	where := "id = $1 AND version = $2"
	args = append([]any{id, expectedVersion}, args...)

	if patch.RequireClaimable {
		args = append(args, now)
		where += fmt.Sprintf(
			" AND (status = 'queued' OR (status = 'running' AND (locked_until IS NULL OR locked_until <= $%d)))",
			len(args),
		)
	}

	query := fmt.Sprintf(
		`UPDATE generation_tasks SET %s, version = version + 1 WHERE %s RETURNING %s`,
		strings.Join(sets, ", "), where, taskColumns,
	)

	t, err := scanTask(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// No matching row: either the task is gone or the precondition
			// failed. Distinguish so callers can treat races as routine.
			if _, getErr := s.Get(ctx, id); getErr != nil {
				return nil, getErr
			}
			log.Debug("conditional write rejected",
				slog.String("task_id", id.String()),
				slog.Int64("expected_version", expectedVersion))
			return nil, store.ErrVersionConflict
		}
		return nil, fmt.Errorf("failed to apply conditional update: %w", err)
	}

	return t, nil
}

// ActiveLeaseExists implements task.TaskStore.ActiveLeaseExists.
func (s *TaskStore) ActiveLeaseExists(ctx context.Context, now time.Time) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM generation_tasks
		WHERE status = 'running' AND locked_until > $1
	)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check active lease: %w", err)
	}
	return exists, nil
}

// NextClaimable implements task.TaskStore.NextClaimable.
func (s *TaskStore) NextClaimable(ctx context.Context, now time.Time) (*task.Task, error) {
	query := `SELECT ` + taskColumns + `
		FROM generation_tasks
		WHERE status = 'queued'
		   OR (status = 'running' AND (locked_until IS NULL OR locked_until <= $1))
		ORDER BY created_at ASC
		LIMIT 1`

	t, err := scanTask(s.db.QueryRowContext(ctx, query, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find claimable task: %w", err)
	}
	return t, nil
}

// ExtendLease implements task.TaskStore.ExtendLease.
func (s *TaskStore) ExtendLease(ctx context.Context, id uuid.UUID, until time.Time) error {
	query := `UPDATE generation_tasks SET locked_until = $2 WHERE id = $1 AND status = 'running'`

	result, err := s.db.ExecContext(ctx, query, id, until)
	if err != nil {
		return fmt.Errorf("failed to extend lease: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return task.ErrTaskNotRunning
	}
	return nil
}

// SaveCheckpoint implements task.TaskStore.SaveCheckpoint. The checkpoint is
// replaced whole; it is never patched field by field. The version condition
// keeps a stale holder from overwriting the checkpoint after a reclaim
// bumped the version out from under it.
func (s *TaskStore) SaveCheckpoint(ctx context.Context, id uuid.UUID, expectedVersion int64, cp *task.Checkpoint) error {
	payload, err := encodeCheckpoint(cp)
	if err != nil {
		return err
	}

	query := `UPDATE generation_tasks SET checkpoint = $3
		WHERE id = $1 AND version = $2 AND status = 'running'`

	result, err := s.db.ExecContext(ctx, query, id, expectedVersion, payload)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		current, getErr := s.Get(ctx, id)
		if getErr != nil {
			return getErr
		}
		if current.Status != task.StatusRunning {
			return task.ErrTaskNotRunning
		}
		return store.ErrVersionConflict
	}
	return nil
}

// buildPatchSQL converts a TaskPatch into SET clauses and their arguments.
// Placeholder numbering starts at $3: $1 and $2 are reserved for the id and
// expected version in the enclosing UPDATE.
func buildPatchSQL(patch task.TaskPatch) ([]string, []any, error) {
	var sets []string
	var args []any

	next := func() int { return len(args) + 3 }

	if patch.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", next()))
		args = append(args, *patch.Status)
	}

	switch {
	case patch.ClearStartedAt:
		sets = append(sets, "started_at = NULL")
	case patch.StartedAt != nil:
		sets = append(sets, fmt.Sprintf("started_at = $%d", next()))
		args = append(args, *patch.StartedAt)
	}

	switch {
	case patch.ClearFinishedAt:
		sets = append(sets, "finished_at = NULL")
	case patch.FinishedAt != nil:
		sets = append(sets, fmt.Sprintf("finished_at = $%d", next()))
		args = append(args, *patch.FinishedAt)
	}

	if patch.PublishedAt != nil {
		sets = append(sets, fmt.Sprintf("published_at = $%d", next()))
		args = append(args, *patch.PublishedAt)
	}

	switch {
	case patch.ClearLockedUntil:
		sets = append(sets, "locked_until = NULL")
	case patch.LockedUntil != nil:
		sets = append(sets, fmt.Sprintf("locked_until = $%d", next()))
		args = append(args, *patch.LockedUntil)
	}

	switch {
	case patch.ClearCheckpoint:
		sets = append(sets, "checkpoint = NULL")
	case patch.Checkpoint != nil:
		payload, err := encodeCheckpoint(patch.Checkpoint)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, fmt.Sprintf("checkpoint = $%d", next()))
		args = append(args, payload)
	}

	if patch.ClearError {
		sets = append(sets, "error_message = NULL", "error_context = NULL")
	}
	if patch.ErrorMessage != nil {
		sets = append(sets, fmt.Sprintf("error_message = $%d", next()))
		args = append(args, *patch.ErrorMessage)
	}
	if patch.ErrorContext != nil {
		sets = append(sets, fmt.Sprintf("error_context = $%d", next()))
		args = append(args, *patch.ErrorContext)
	}

	if len(sets) == 0 {
		return nil, nil, errors.New("empty task patch")
	}
	return sets, args, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask reads one task row in taskColumns order.
func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var checkpoint []byte
	var errorMessage, errorContext sql.NullString
	var startedAt, finishedAt, publishedAt, lockedUntil sql.NullTime

	err := row.Scan(
		&t.ID, &t.ProfileID, &t.TriggerSource, &t.TaskDate, &t.Model, &t.Status, &t.Version,
		&checkpoint, &errorMessage, &errorContext,
		&t.CreatedAt, &startedAt, &finishedAt, &publishedAt, &lockedUntil,
	)
	if err != nil {
		return nil, err
	}

	// An unrecognized checkpoint tag decodes to nil: obsolete checkpoints
	// mean a fresh start, not a crash.
	cp, err := task.DecodeCheckpoint(checkpoint)
	if err != nil {
		return nil, err
	}
	t.Checkpoint = cp

	t.ErrorMessage = errorMessage.String
	t.ErrorContext = errorContext.String
	t.StartedAt = nullTimePtr(startedAt)
	t.FinishedAt = nullTimePtr(finishedAt)
	t.PublishedAt = nullTimePtr(publishedAt)
	t.LockedUntil = nullTimePtr(lockedUntil)

	return &t, nil
}

// encodeCheckpoint serializes a checkpoint for the jsonb column; nil maps to
// SQL NULL.
func encodeCheckpoint(cp *task.Checkpoint) ([]byte, error) {
	if cp == nil {
		return nil, nil
	}
	return cp.Encode()
}

// nullString maps the empty string to SQL NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullTimePtr converts a NullTime into a *time.Time.
func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
