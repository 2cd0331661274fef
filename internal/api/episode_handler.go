package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dokusho-app/dokusho-api/internal/api/shared"
	"github.com/dokusho-app/dokusho-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// EpisodeHandler handles published-episode endpoints.
type EpisodeHandler struct {
	episodes service.EpisodeService
	logger   *slog.Logger
}

// NewEpisodeHandler creates a new EpisodeHandler with the given dependencies.
func NewEpisodeHandler(episodes service.EpisodeService, logger *slog.Logger) *EpisodeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EpisodeHandler{
		episodes: episodes,
		logger:   logger.With("component", "episode_handler"),
	}
}

// Get retrieves one published episode with its annotations and questions.
// GET /episodes/{id}
func (h *EpisodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid episode ID")
		return
	}

	episode, err := h.episodes.GetEpisode(r.Context(), id)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewEpisodeResponse(episode))
}

// ListByProfile retrieves a profile's most recent episodes.
// GET /profiles/{id}/episodes?limit=10
func (h *EpisodeHandler) ListByProfile(w http.ResponseWriter, r *http.Request) {
	profileID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid profile ID")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	episodes, err := h.episodes.ListEpisodes(r.Context(), profileID, limit)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	responses := make([]EpisodeResponse, 0, len(episodes))
	for _, e := range episodes {
		responses = append(responses, NewEpisodeResponse(e))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}
