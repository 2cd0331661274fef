package api

import (
	"log/slog"
	"net/http"

	"github.com/dokusho-app/dokusho-api/internal/api/shared"
	"github.com/dokusho-app/dokusho-api/internal/domain"
	"github.com/dokusho-app/dokusho-api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ProfileHandler handles reader-profile endpoints.
type ProfileHandler struct {
	profiles service.ProfileService
	logger   *slog.Logger
}

// NewProfileHandler creates a new ProfileHandler with the given dependencies.
func NewProfileHandler(profiles service.ProfileService, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{
		profiles: profiles,
		logger:   logger.With("component", "profile_handler"),
	}
}

// Create stores a new reader profile.
// POST /profiles
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProfileRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid profile data")
		return
	}

	profile, err := h.profiles.CreateProfile(
		r.Context(),
		req.Name,
		domain.ReadingLevel(req.Level),
		req.Topics,
		req.TargetLength,
		req.Model,
		req.DailyEnabled,
	)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, NewProfileResponse(profile))
}

// Get retrieves one profile.
// GET /profiles/{id}
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid profile ID")
		return
	}

	profile, err := h.profiles.GetProfile(r.Context(), id)
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, NewProfileResponse(profile))
}

// List retrieves all daily-enabled profiles.
// GET /profiles
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.profiles.ListActiveProfiles(r.Context())
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	responses := make([]ProfileResponse, 0, len(profiles))
	for _, p := range profiles {
		responses = append(responses, NewProfileResponse(p))
	}
	shared.RespondWithJSON(w, r, http.StatusOK, responses)
}
