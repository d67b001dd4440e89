// Package handlers exposes the dialogue engine over HTTP: chat turns,
// session management, health and a WebSocket stream for turn progress.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/incipit-labs/folio-engine/pkg/apperrors"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusFor maps an engine error onto an HTTP status and stable error code.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperrors.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, apperrors.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrPlanUnsupported):
		return http.StatusUnprocessableEntity, "plan_unsupported"
	case errors.Is(err, apperrors.ErrPlanInvalid):
		return http.StatusUnprocessableEntity, "plan_invalid"
	case errors.Is(err, apperrors.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apperrors.ErrNLUnavailable):
		return http.StatusServiceUnavailable, "language_service_unavailable"
	case errors.Is(err, apperrors.ErrDependencyNotReady):
		return http.StatusServiceUnavailable, "dependency_not_ready"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// WriteError maps err to a status via StatusFor and writes the JSON error
// body.
func WriteError(w http.ResponseWriter, err error) error {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		// Internal detail stays in the logs.
		message = "internal error"
	}
	return ErrorResponse(w, status, code, message)
}
