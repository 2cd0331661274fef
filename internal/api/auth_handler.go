package api

import (
	"log/slog"
	"net/http"

	"github.com/dokusho-app/dokusho-api/internal/api/shared"
	"github.com/dokusho-app/dokusho-api/internal/service/auth"
)

// AuthHandler handles the admin token exchange.
type AuthHandler struct {
	verifier   *auth.AdminKeyVerifier
	jwtService auth.JWTService
	logger     *slog.Logger
}

// NewAuthHandler creates a new AuthHandler with the given dependencies.
func NewAuthHandler(
	verifier *auth.AdminKeyVerifier,
	jwtService auth.JWTService,
	logger *slog.Logger,
) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		verifier:   verifier,
		jwtService: jwtService,
		logger:     logger.With("component", "auth_handler"),
	}
}

// Token exchanges the admin key for a short-lived access token.
// POST /auth/token
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Admin key is required")
		return
	}

	if err := h.verifier.Verify(req.AdminKey); err != nil {
		// Deliberately the same response shape as a malformed token so the
		// endpoint leaks nothing about why the exchange failed.
		h.logger.Warn("admin key rejected",
			"trace_id", shared.GetTraceID(r.Context()),
			"remote_addr", r.RemoteAddr)
		RespondWithServiceError(w, r, err)
		return
	}

	token, err := h.jwtService.GenerateToken(r.Context())
	if err != nil {
		RespondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TokenResponse{AccessToken: token})
}
