// Package handlers implements the HTTP API: ingest, search, context
// assembly, and health. Each handler is a struct implementing http.Handler
// and maps pipeline errors onto HTTP status codes in one place.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/davidamom/neuralflake/internal/domain"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFromError maps pipeline errors to HTTP status codes: caller mistakes
// are 400, embedding upstream failures 502, store outages 503, anything
// else 500.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrEmbedding):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message})
}
