package main

import (
	"net/http"

	"github.com/dokusho-app/dokusho-api/internal/api"
	apiMiddleware "github.com/dokusho-app/dokusho-api/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	authHandler := api.NewAuthHandler(app.keyVerifier, app.jwtService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	taskHandler := api.NewTaskHandler(app.episodeService, app.logger)
	episodeHandler := api.NewEpisodeHandler(app.episodeService, app.logger)
	profileHandler := api.NewProfileHandler(app.profileService, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Token exchange (public)
		r.Post("/auth/token", authHandler.Token)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			// Generation tasks
			r.Post("/tasks", taskHandler.Enqueue)
			r.Get("/tasks", taskHandler.List)
			r.Get("/tasks/{id}", taskHandler.Get)
			r.Post("/tasks/{id}/retry", taskHandler.Retry)
			r.Get("/tasks/{id}/episode", taskHandler.GetEpisode)

			// Episodes
			r.Get("/episodes/{id}", episodeHandler.Get)

			// Profiles
			r.Post("/profiles", profileHandler.Create)
			r.Get("/profiles", profileHandler.List)
			r.Get("/profiles/{id}", profileHandler.Get)
			r.Get("/profiles/{id}/episodes", episodeHandler.ListByProfile)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
