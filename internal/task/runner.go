package task

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Executor runs a claimed task through the generation pipeline. The executor
// owns the terminal transition: by the time Execute returns, the task has
// been moved to succeeded or failed through the Queue. A returned error means
// even that transition could not be recorded.
type Executor interface {
	Execute(ctx context.Context, t *Task) error
}

// RunnerConfig holds configuration for the polling worker loop.
type RunnerConfig struct {
	// PollInterval is how often the loop asks the queue for work.
	PollInterval time.Duration

	// KeepAliveInterval is the lease renewal cadence while a task executes.
	// Keep it comfortably under the queue's lease duration (a third or less).
	KeepAliveInterval time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval:      15 * time.Second,
		KeepAliveInterval: 2 * time.Minute,
	}
}

// Runner is the worker loop: it polls the queue for a claimable task, runs it
// through the executor while renewing the lease, and lets the executor record
// the terminal outcome. Several processes may run their own Runner against
// the same database; the queue's conditional writes keep execution
// single-flight.
type Runner struct {
	queue    *Queue
	executor Executor
	config   RunnerConfig
	logger   *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// NewRunner creates a Runner over the given queue and executor.
func NewRunner(queue *Queue, executor Executor, config RunnerConfig, logger *slog.Logger) *Runner {
	if queue == nil {
		panic("queue cannot be nil")
	}
	if executor == nil {
		panic("executor cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultRunnerConfig().PollInterval
	}
	if config.KeepAliveInterval <= 0 {
		config.KeepAliveInterval = DefaultRunnerConfig().KeepAliveInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		queue:      queue,
		executor:   executor,
		config:     config,
		logger:     logger.With(slog.String("component", "task_runner")),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the polling loop in the background.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.loop()
	r.logger.Info("task runner started",
		slog.Duration("poll_interval", r.config.PollInterval),
		slog.Duration("keep_alive_interval", r.config.KeepAliveInterval))
}

// Stop shuts the runner down and waits for an in-flight execution to wind
// down. Cancellation interrupts the current stage call; the task is left
// running so lease expiry hands it to the next claim, checkpoint intact.
func (r *Runner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	r.logger.Info("task runner stopped")
}

// loop polls on a fixed interval. After finishing a task it immediately polls
// again to drain the backlog; when the queue is empty or a store error
// occurs, it backs off to the next tick rather than spinning.
func (r *Runner) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		r.drain()

		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain claims and executes tasks until nothing is claimable.
func (r *Runner) drain() {
	for {
		if r.ctx.Err() != nil {
			return
		}

		claimed, err := r.queue.Claim(r.ctx)
		if err != nil {
			r.logger.Error("claim failed, backing off to next poll", "error", err)
			return
		}
		if claimed == nil {
			return
		}

		r.runTask(claimed)
	}
}

// runTask executes one claimed task with lease keep-alive running alongside.
func (r *Runner) runTask(t *Task) {
	log := r.logger.With(slog.String("task_id", t.ID.String()))

	keepAliveCtx, stopKeepAlive := context.WithCancel(r.ctx)
	var kaWG sync.WaitGroup
	kaWG.Add(1)
	go func() {
		defer kaWG.Done()
		r.keepAlive(keepAliveCtx, t)
	}()

	log.Info("executing task",
		slog.String("profile_id", t.ProfileID.String()),
		slog.Time("task_date", t.TaskDate))

	if err := r.executor.Execute(r.ctx, t); err != nil {
		// The executor failed to even record a terminal state; the lease
		// will expire and another worker will pick the task up.
		log.Error("executor could not record task outcome", "error", err)
	}

	stopKeepAlive()
	kaWG.Wait()
}

// keepAlive renews the lease until its context is cancelled.
func (r *Runner) keepAlive(ctx context.Context, t *Task) {
	ticker := time.NewTicker(r.config.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.queue.KeepAlive(ctx, t.ID); err != nil {
				// Losing the lease mid-run is survivable: completion is
				// idempotent. Log and keep trying until execution ends.
				r.logger.Warn("lease renewal failed",
					slog.String("task_id", t.ID.String()),
					"error", err)
			}
		}
	}
}
