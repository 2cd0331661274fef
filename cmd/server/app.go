package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/config"
	"github.com/dokusho-app/dokusho-api/internal/pipeline"
	"github.com/dokusho-app/dokusho-api/internal/platform/gemini"
	"github.com/dokusho-app/dokusho-api/internal/platform/postgres"
	"github.com/dokusho-app/dokusho-api/internal/service"
	"github.com/dokusho-app/dokusho-api/internal/service/auth"
	"github.com/dokusho-app/dokusho-api/internal/task"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// application holds every long-lived component the server runs: stores, the
// lease queue, the worker runner, the scheduler and the HTTP handler deps.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	jwtService  auth.JWTService
	keyVerifier *auth.AdminKeyVerifier

	episodeService service.EpisodeService
	profileService service.ProfileService

	runner    *task.Runner
	scheduler *service.Scheduler
}

// newApplication wires the full dependency graph from configuration.
func newApplication(cfg *config.Config) (*application, error) {
	log := slog.Default()

	db, err := openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}

	taskStore := postgres.NewTaskStore(db, log)
	profileStore := postgres.NewProfileStore(db, log)
	episodeStore := postgres.NewEpisodeStore(db, log)

	queue := task.NewQueue(taskStore, task.QueueConfig{
		LeaseDuration:   cfg.Worker.LeaseDuration(),
		ClaimRetryLimit: cfg.Worker.ClaimRetryLimit,
	}, log)

	generator, err := gemini.NewGenerator(context.Background(), log, cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	executor := pipeline.NewExecutor(
		queue,
		generator,
		profileStore,
		episodeStore,
		db,
		time.Duration(cfg.LLM.StageTimeoutSeconds)*time.Second,
		log,
	)

	runner := task.NewRunner(queue, executor, task.RunnerConfig{
		PollInterval:      cfg.Worker.PollInterval(),
		KeepAliveInterval: cfg.Worker.KeepAliveInterval(),
	}, log)

	jwtService, err := auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT service: %w", err)
	}

	keyVerifier, err := auth.NewAdminKeyVerifier(cfg.Auth.AdminKeyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to create admin key verifier: %w", err)
	}

	episodeService, err := service.NewEpisodeService(taskStore, queue, profileStore, episodeStore, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create episode service: %w", err)
	}

	profileService, err := service.NewProfileService(profileStore, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create profile service: %w", err)
	}

	app := &application{
		config:         cfg,
		logger:         log,
		db:             db,
		jwtService:     jwtService,
		keyVerifier:    keyVerifier,
		episodeService: episodeService,
		profileService: profileService,
		runner:         runner,
	}

	if cfg.Scheduler.Enabled {
		scheduler, err := service.NewScheduler(episodeService, cfg.Scheduler.CronSpec, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}
		app.scheduler = scheduler
	}

	return app, nil
}

// run starts the worker, the scheduler and the HTTP server, then blocks until
// a shutdown signal arrives and everything has drained.
func (app *application) run() error {
	app.runner.Start()
	if app.scheduler != nil {
		app.scheduler.Start()
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.setupRouter(),
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		app.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case <-shutdownCh:
		app.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
	}

	app.cleanup()
	return nil
}

// cleanup stops the background components in dependency order.
func (app *application) cleanup() {
	if app.scheduler != nil {
		app.scheduler.Stop()
	}
	app.runner.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", "error", err)
	}
}
