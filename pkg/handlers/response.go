// Package handlers wires the console's HTTP surface: the JSON operations
// under /app, the server-rendered pages, and the login flow.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/hongcheng-ai/sqlchat-console/pkg/apperrors"
	"github.com/hongcheng-ai/sqlchat-console/pkg/assistant"
	"github.com/hongcheng-ai/sqlchat-console/pkg/services"
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
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// readJSON decodes a request body into dst.
func readJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

// writeServiceError maps service errors to HTTP status codes. Workflow
// preconditions map to 409 so the page can tell "you can't do that right
// now" apart from malformed input.
func writeServiceError(w http.ResponseWriter, err error) {
	var statusErr *assistant.StatusError
	var importErr *services.ImportValidationError

	switch {
	case errors.Is(err, apperrors.ErrEmptyQuestion),
		errors.Is(err, apperrors.ErrEmptySQL),
		errors.Is(err, apperrors.ErrInvalidPageSize),
		errors.Is(err, apperrors.ErrTypeSuffixMismatch):
		_ = ErrorResponse(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, apperrors.ErrInjectionDetected):
		_ = ErrorResponse(w, http.StatusBadRequest, "injection_detected", err.Error())
	case errors.Is(err, apperrors.ErrNoPendingVariables),
		errors.Is(err, apperrors.ErrNoFocusedResponse),
		errors.Is(err, apperrors.ErrNotRetryable),
		errors.Is(err, apperrors.ErrNoResult):
		_ = ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrNotFound):
		_ = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &importErr):
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.As(err, &statusErr):
		_ = ErrorResponse(w, http.StatusBadGateway, "backend_error", err.Error())
	default:
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
