package task

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a generation task.
type Status string

// Possible task status values.
const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// TriggerSource identifies what created a task.
type TriggerSource string

// Possible trigger sources.
const (
	TriggerSchedule TriggerSource = "schedule"
	TriggerManual   TriggerSource = "manual"
)

// Task-specific validation errors.
var (
	ErrTaskIDEmpty        = errors.New("task ID cannot be empty")
	ErrTaskProfileEmpty   = errors.New("task profile ID cannot be empty")
	ErrTaskModelEmpty     = errors.New("task model cannot be empty")
	ErrTaskDateZero       = errors.New("task date cannot be zero")
	ErrInvalidStatus      = errors.New("invalid task status")
	ErrInvalidTrigger     = errors.New("invalid trigger source")
	ErrTaskNotRetryable   = errors.New("only failed tasks can be retried")
	ErrTaskNotRunning     = errors.New("task is not running")
)

// Task is one durable generation attempt: one row per profile per date per
// enqueue. Inputs (ProfileID, TriggerSource, TaskDate, Model) never change
// after creation; everything else is driven through the Queue's conditional
// writes.
type Task struct {
	ID            uuid.UUID     `json:"id"`
	ProfileID     uuid.UUID     `json:"profile_id"`
	TriggerSource TriggerSource `json:"trigger_source"`
	TaskDate      time.Time     `json:"task_date"`
	Model         string        `json:"model"`

	Status  Status `json:"status"`
	Version int64  `json:"version"`

	// Checkpoint records the last completed pipeline stage and its outputs.
	// Nil means the pipeline starts from the beginning.
	Checkpoint *Checkpoint `json:"checkpoint,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorContext string `json:"error_context,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`

	// LockedUntil is the lease deadline. Nil or in the past means the task is
	// claimable even when Status is running (crash recovery).
	LockedUntil *time.Time `json:"locked_until,omitempty"`
}

// New creates a queued Task for the given profile, date and model.
// Version starts at zero; the first claim bumps it to one.
func New(profileID uuid.UUID, taskDate time.Time, trigger TriggerSource, model string) (*Task, error) {
	t := &Task{
		ID:            uuid.New(),
		ProfileID:     profileID,
		TriggerSource: trigger,
		TaskDate:      taskDate,
		Model:         model,
		Status:        StatusQueued,
		Version:       0,
		CreatedAt:     time.Now().UTC(),
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}

	return t, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return ErrTaskIDEmpty
	}

	if t.ProfileID == uuid.Nil {
		return ErrTaskProfileEmpty
	}

	if t.Model == "" {
		return ErrTaskModelEmpty
	}

	if t.TaskDate.IsZero() {
		return ErrTaskDateZero
	}

	if !t.Status.Known() {
		return ErrInvalidStatus
	}

	switch t.TriggerSource {
	case TriggerSchedule, TriggerManual:
	default:
		return ErrInvalidTrigger
	}

	return nil
}

// Terminal reports whether the task has reached a terminal status.
func (t *Task) Terminal() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

// LeaseActive reports whether the task holds a lease that has not expired
// at the given instant.
func (t *Task) LeaseActive(now time.Time) bool {
	return t.Status == StatusRunning && t.LockedUntil != nil && t.LockedUntil.After(now)
}

// Claimable reports whether the task can be claimed at the given instant:
// either freshly queued, or running with an expired lease (presumed crash).
func (t *Task) Claimable(now time.Time) bool {
	if t.Status == StatusQueued {
		return true
	}
	return t.Status == StatusRunning && (t.LockedUntil == nil || !t.LockedUntil.After(now))
}

// Known reports whether s is one of the defined status values.
func (s Status) Known() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}
