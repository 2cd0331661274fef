package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/task"
	"github.com/robfig/cron/v3"
)

// Scheduler enqueues the daily batch of generation tasks on a cron schedule.
// It only creates queued rows; the worker runner picks them up independently,
// so a missed tick costs one day's automatic enqueue and nothing else.
type Scheduler struct {
	episodes EpisodeService
	cron     *cron.Cron
	spec     string
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler that fires on the given cron spec
// (standard five-field syntax, e.g. "0 5 * * *" for 05:00 UTC daily).
func NewScheduler(episodes EpisodeService, spec string, logger *slog.Logger) (*Scheduler, error) {
	if episodes == nil {
		return nil, &EpisodeServiceError{Operation: "create_scheduler", Message: "episodes cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		episodes: episodes,
		cron:     cron.New(cron.WithLocation(time.UTC)),
		spec:     spec,
		logger:   logger.With("component", "scheduler"),
	}

	if _, err := s.cron.AddFunc(spec, s.tick); err != nil {
		return nil, &EpisodeServiceError{
			Operation: "create_scheduler",
			Message:   "invalid cron spec",
			Err:       err,
		}
	}

	return s, nil
}

// Start begins firing ticks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "spec", s.spec)
}

// Stop stops the cron loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// tick enqueues today's tasks for every active profile. Enqueue failures are
// logged and absorbed: the next tick (or a manual enqueue) covers the gap.
func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	today := time.Now().UTC().Truncate(24 * time.Hour)

	created, err := s.episodes.EnqueueForDate(ctx, today, task.TriggerSchedule)
	if err != nil {
		s.logger.Error("scheduled enqueue failed",
			"error", err,
			"task_date", today.Format(time.DateOnly),
			"created", len(created))
		return
	}

	s.logger.Info("scheduled enqueue complete",
		"task_date", today.Format(time.DateOnly),
		"created", len(created))
}
