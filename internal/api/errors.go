package api

import (
	"errors"
	"net/http"

	"github.com/dokusho-app/dokusho-api/internal/api/shared"
	"github.com/dokusho-app/dokusho-api/internal/service"
	"github.com/dokusho-app/dokusho-api/internal/service/auth"
	"github.com/dokusho-app/dokusho-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes so raw
// internals never choose a status by accident.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrInvalidAdminKey):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, service.ErrEpisodeNotFound),
		errors.Is(err, service.ErrProfileNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, store.ErrTaskExists),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, service.ErrTaskNotRetryable):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-facing message for an error.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidAdminKey):
		return "Invalid admin key"

	case errors.Is(err, service.ErrTaskNotFound):
		return "Generation task not found"

	case errors.Is(err, service.ErrEpisodeNotFound):
		return "Episode not found"

	case errors.Is(err, service.ErrProfileNotFound):
		return "Profile not found"

	case errors.Is(err, store.ErrTaskExists):
		return "A generation task already exists for this profile and date"

	case errors.Is(err, store.ErrDuplicate):
		return "Resource already exists"

	case errors.Is(err, service.ErrTaskNotRetryable):
		return "Only failed tasks can be retried"

	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}

// RespondWithServiceError maps err to a status code and safe message, then
// writes the standard error response.
func RespondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}
