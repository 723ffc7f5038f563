package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the domain error taxonomy onto HTTP statuses. Anything
// outside the taxonomy is an internal error and its details stay out of the
// response.
func writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *model.ValidationError
		rangeErr      *model.InvalidRangeError
		notFoundErr   *model.NotFoundError
		conflictErr   *model.ConflictError
		providerErr   *model.ProviderError
		timeoutErr    *model.TimeoutError
	)
	switch {
	case errors.As(err, &validationErr), errors.As(err, &rangeErr):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &notFoundErr):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &conflictErr):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &providerErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &timeoutErr):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
