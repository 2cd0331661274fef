package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/store"
	"github.com/dokusho-app/dokusho-api/internal/task"
	"github.com/google/uuid"
)

// EpisodeService provides episode and generation-task operations for the API
// layer and the scheduler.
type EpisodeService interface {
	// EnqueueForDate creates one queued generation task per active profile for
	// the given episode date. Profiles that already have a task for that date
	// are skipped. Returns the tasks actually created.
	EnqueueForDate(ctx context.Context, date time.Time, trigger task.TriggerSource) ([]*task.Task, error)

	// EnqueueForProfile creates one queued generation task for a single
	// profile and date.
	EnqueueForProfile(
		ctx context.Context,
		profileID uuid.UUID,
		date time.Time,
		trigger task.TriggerSource,
	) (*task.Task, error)

	// RetryTask resets a failed task to queued, clearing its error detail.
	// The checkpoint is kept so the pipeline resumes past completed stages;
	// fresh discards it for a rerun from the first stage.
	RetryTask(ctx context.Context, taskID uuid.UUID, fresh bool) (*task.Task, error)

	// GetTask retrieves a generation task by ID.
	GetTask(ctx context.Context, taskID uuid.UUID) (*task.Task, error)

	// ListTasks retrieves all generation tasks in the given status, oldest
	// first.
	ListTasks(ctx context.Context, status task.Status) ([]*task.Task, error)

	// GetEpisode retrieves a published episode by ID.
	GetEpisode(ctx context.Context, episodeID uuid.UUID) (*domain.Episode, error)

	// GetEpisodeByTask retrieves the episode produced by a generation task.
	GetEpisodeByTask(ctx context.Context, taskID uuid.UUID) (*domain.Episode, error)

	// ListEpisodes retrieves a profile's most recent episodes.
	ListEpisodes(ctx context.Context, profileID uuid.UUID, limit int) ([]*domain.Episode, error)
}

// Common sentinel errors for EpisodeService.
var (
	// ErrTaskNotFound indicates the generation task does not exist.
	ErrTaskNotFound = errors.New("generation task not found")

	// ErrEpisodeNotFound indicates the episode does not exist.
	ErrEpisodeNotFound = errors.New("episode not found")

	// ErrProfileNotFound indicates the profile does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrTaskNotRetryable indicates a retry was requested for a task that is
	// not in the failed state.
	ErrTaskNotRetryable = errors.New("only failed tasks can be retried")
)

// EpisodeServiceError wraps unexpected errors from the episode service with
// the operation that produced them.
type EpisodeServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface for EpisodeServiceError.
func (e *EpisodeServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("episode service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("episode service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *EpisodeServiceError) Unwrap() error {
	return e.Err
}

// newEpisodeServiceError maps store and queue sentinels to service sentinels
// and wraps everything else with the failing operation.
func newEpisodeServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		return ErrTaskNotFound
	case errors.Is(err, store.ErrEpisodeNotFound):
		return ErrEpisodeNotFound
	case errors.Is(err, store.ErrProfileNotFound):
		return ErrProfileNotFound
	case errors.Is(err, task.ErrTaskNotRetryable):
		return ErrTaskNotRetryable
	}

	return &EpisodeServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// episodeServiceImpl implements the EpisodeService interface.
type episodeServiceImpl struct {
	tasks    task.TaskStore
	queue    *task.Queue
	profiles store.ProfileStore
	episodes store.EpisodeStore
	logger   *slog.Logger
}

// NewEpisodeService creates a new EpisodeService.
// It returns an error if any of the required dependencies are nil.
func NewEpisodeService(
	tasks task.TaskStore,
	queue *task.Queue,
	profiles store.ProfileStore,
	episodes store.EpisodeStore,
	logger *slog.Logger,
) (EpisodeService, error) {
	if tasks == nil {
		return nil, &EpisodeServiceError{Operation: "create_service", Message: "tasks cannot be nil"}
	}
	if queue == nil {
		return nil, &EpisodeServiceError{Operation: "create_service", Message: "queue cannot be nil"}
	}
	if profiles == nil {
		return nil, &EpisodeServiceError{Operation: "create_service", Message: "profiles cannot be nil"}
	}
	if episodes == nil {
		return nil, &EpisodeServiceError{Operation: "create_service", Message: "episodes cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &episodeServiceImpl{
		tasks:    tasks,
		queue:    queue,
		profiles: profiles,
		episodes: episodes,
		logger:   logger.With("component", "episode_service"),
	}, nil
}

// EnqueueForDate creates one task per active profile, tolerating profiles
// that already have one for the date. A partial result with a nil error is
// normal when some profiles were already enqueued.
func (s *episodeServiceImpl) EnqueueForDate(
	ctx context.Context,
	date time.Time,
	trigger task.TriggerSource,
) ([]*task.Task, error) {
	profiles, err := s.profiles.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list active profiles",
			"error", err)
		return nil, newEpisodeServiceError("enqueue_for_date", "failed to list active profiles", err)
	}

	var created []*task.Task
	for _, profile := range profiles {
		t, err := s.enqueue(ctx, profile, date, trigger)
		if err != nil {
			if errors.Is(err, store.ErrTaskExists) {
				s.logger.Debug("task already exists for date, skipping",
					"profile_id", profile.ID,
					"task_date", date.Format(time.DateOnly))
				continue
			}
			return created, newEpisodeServiceError("enqueue_for_date", "failed to enqueue task", err)
		}
		created = append(created, t)
	}

	s.logger.Info("daily enqueue finished",
		"task_date", date.Format(time.DateOnly),
		"trigger", trigger,
		"profiles", len(profiles),
		"created", len(created))
	return created, nil
}

// EnqueueForProfile creates a single task for one profile and date.
func (s *episodeServiceImpl) EnqueueForProfile(
	ctx context.Context,
	profileID uuid.UUID,
	date time.Time,
	trigger task.TriggerSource,
) (*task.Task, error) {
	profile, err := s.profiles.GetByID(ctx, profileID)
	if err != nil {
		return nil, newEpisodeServiceError("enqueue_for_profile", "failed to load profile", err)
	}

	t, err := s.enqueue(ctx, profile, date, trigger)
	if err != nil {
		if errors.Is(err, store.ErrTaskExists) {
			return nil, newEpisodeServiceError("enqueue_for_profile", "task already exists", err)
		}
		return nil, newEpisodeServiceError("enqueue_for_profile", "failed to enqueue task", err)
	}
	return t, nil
}

// enqueue builds and inserts one queued task for a profile.
func (s *episodeServiceImpl) enqueue(
	ctx context.Context,
	profile *domain.Profile,
	date time.Time,
	trigger task.TriggerSource,
) (*task.Task, error) {
	t, err := task.New(profile.ID, date, trigger, profile.Model)
	if err != nil {
		return nil, err
	}

	if err := s.tasks.Insert(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("generation task enqueued",
		"task_id", t.ID,
		"profile_id", profile.ID,
		"task_date", date.Format(time.DateOnly),
		"trigger", trigger)
	return t, nil
}

// RetryTask resets a failed task to queued via the lease manager.
func (s *episodeServiceImpl) RetryTask(ctx context.Context, taskID uuid.UUID, fresh bool) (*task.Task, error) {
	t, err := s.queue.Retry(ctx, taskID, fresh)
	if err != nil {
		s.logger.Warn("task retry rejected",
			"error", err,
			"task_id", taskID)
		return nil, newEpisodeServiceError("retry_task", "failed to retry task", err)
	}
	return t, nil
}

// GetTask retrieves a generation task by ID.
func (s *episodeServiceImpl) GetTask(ctx context.Context, taskID uuid.UUID) (*task.Task, error) {
	t, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, newEpisodeServiceError("get_task", "failed to retrieve task", err)
	}
	return t, nil
}

// ListTasks retrieves all tasks in a status, oldest first.
func (s *episodeServiceImpl) ListTasks(ctx context.Context, status task.Status) ([]*task.Task, error) {
	if !status.Known() {
		return nil, newEpisodeServiceError("list_tasks", "unknown status",
			fmt.Errorf("%w: %q", store.ErrInvalidEntity, status))
	}

	tasks, err := s.tasks.ListByStatus(ctx, status)
	if err != nil {
		return nil, newEpisodeServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

// GetEpisode retrieves an episode by ID.
func (s *episodeServiceImpl) GetEpisode(ctx context.Context, episodeID uuid.UUID) (*domain.Episode, error) {
	episode, err := s.episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, newEpisodeServiceError("get_episode", "failed to retrieve episode", err)
	}
	return episode, nil
}

// GetEpisodeByTask retrieves the episode produced by a task.
func (s *episodeServiceImpl) GetEpisodeByTask(ctx context.Context, taskID uuid.UUID) (*domain.Episode, error) {
	episode, err := s.episodes.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, newEpisodeServiceError("get_episode_by_task", "failed to retrieve episode", err)
	}
	return episode, nil
}

// ListEpisodes retrieves a profile's most recent episodes.
func (s *episodeServiceImpl) ListEpisodes(
	ctx context.Context,
	profileID uuid.UUID,
	limit int,
) ([]*domain.Episode, error) {
	if _, err := s.profiles.GetByID(ctx, profileID); err != nil {
		return nil, newEpisodeServiceError("list_episodes", "failed to load profile", err)
	}

	episodes, err := s.episodes.ListByProfile(ctx, profileID, limit)
	if err != nil {
		return nil, newEpisodeServiceError("list_episodes", "failed to list episodes", err)
	}
	return episodes, nil
}
