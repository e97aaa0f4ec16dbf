package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/notifyhub/mailqueue/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// mapError translates domain errors to HTTP status codes.
// All mapping lives here so individual handlers stay concise.
func mapError(w http.ResponseWriter, err error) {
	var (
		ve *domain.ValidationError
		ue *domain.UnknownJobTypeError
	)
	switch {
	case errors.As(err, &ve):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": ve.Error(),
			"field": ve.Field,
		})
	case errors.As(err, &ue):
		respondError(w, http.StatusUnprocessableEntity, ue.Error())
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrQueueUnavailable),
		errors.Is(err, domain.ErrQueueClosed),
		errors.Is(err, domain.ErrConnection):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}
