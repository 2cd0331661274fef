package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dokusho-app/dokusho-api/internal/api/shared"
	"github.com/dokusho-app/dokusho-api/internal/service"
	"github.com/dokusho-app/dokusho-api/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// TaskHandler handles generation-task endpoints.
type TaskHandler struct {
	episodes service.EpisodeService
	logger   *slog.Logger
}

// NewTaskHandler creates a new TaskHandler with the given dependencies.
func NewTaskHandler(episodes service.EpisodeService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		episodes: episodes,
		logger:   logger.With("component", "task_handler"),
	}
}

// Enqueue creates generation tasks manually. With a profile_id it enqueues
// one task; without, one per active profile.
// POST /tasks
func (h *TaskHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Date must be in YYYY-MM-DD format")
		return
	}

	date := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != "" {
		parsed, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Date must be in YYYY-MM-DD format")
			return
		}
		date = parsed
	}

	if req.ProfileID != nil {
		t, err := h.episodes.EnqueueForProfile(r.Context(), *req.ProfileID, date, task.TriggerManual)
		if err != nil {
			RespondWithServiceError(w, r, err)
			return
		}
		shared.RespondWithJSON(w, r, http.StatusCreated, []TaskResponse{NewTaskResponse(t)})
		return
	}

	created, err := h.episodes.EnqueueForDate(r.Context(), date, task.TriggerManual)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	responses := make([]TaskResponse, 0, len(created))
	for _, t := range created {
		responses = append(responses, NewTaskResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusCreated, responses)
}

// Retry resets a failed task to queued. The optional body's fresh flag
// discards the checkpoint for a from-scratch rerun.
// POST /tasks/{id}/retry
func (h *TaskHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	// The body is optional; absent means resume from checkpoint.
	var req RetryRequest
	if err := shared.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	t, err := h.episodes.RetryTask(r.Context(), id, req.Fresh)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(t))
}

// Get retrieves one generation task.
// GET /tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	t, err := h.episodes.GetTask(r.Context(), id)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewTaskResponse(t))
}

// List retrieves tasks by status (default: queued).
// GET /tasks?status=failed
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	status := task.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = task.StatusQueued
	}
	if !status.Known() {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown task status")
		return
	}

	tasks, err := h.episodes.ListTasks(r.Context(), status)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	responses := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		responses = append(responses, NewTaskResponse(t))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}

// GetEpisode retrieves the episode a task produced.
// GET /tasks/{id}/episode
func (h *TaskHandler) GetEpisode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.taskID(w, r)
	if !ok {
		return
	}

	episode, err := h.episodes.GetEpisodeByTask(r.Context(), id)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewEpisodeResponse(episode))
}

// taskID parses the {id} URL parameter, writing a 400 on failure.
func (h *TaskHandler) taskID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return id, true
}
