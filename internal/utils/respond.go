package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/reseller/internal/domain"
)

// WriteJSON writes data as the response body with the given status.
func WriteJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// WriteData wraps data in the {"data", "metadata"} envelope.
func WriteData(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	WriteJSON(w, log, status, map[string]interface{}{
		"data": data,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// WriteError maps domain errors to a status code and writes {"error": {"message", "code"}}.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Msg("Request failed")
	}
	WriteJSON(w, log, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": err.Error(),
			"code":    code,
		},
	})
}

// WriteBadRequest reports a malformed request.
func WriteBadRequest(w http.ResponseWriter, log zerolog.Logger, message string) {
	WriteJSON(w, log, http.StatusBadRequest, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    "BAD_REQUEST",
		},
	})
}

// StatusFor returns the HTTP status and error code for err.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrExternalSource):
		return http.StatusBadGateway, "EXTERNAL_SOURCE_FAILED"
	case errors.Is(err, domain.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "INSUFFICIENT_DATA"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
