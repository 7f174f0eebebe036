package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rpattn/trialnotes/internal/domain"
	"github.com/rpattn/trialnotes/internal/logger"
)

var (
	// ErrPayloadTooLarge is returned for bodies over the configured limit.
	ErrPayloadTooLarge = errors.New("payload too large")
	// ErrMethodNotAllowed is returned when a route exists for another method.
	ErrMethodNotAllowed = errors.New("method not allowed")
)

var errorStatusMap = map[error]int{
	domain.ErrNotFound:  http.StatusNotFound,
	ErrPayloadTooLarge:  http.StatusRequestEntityTooLarge,
	ErrMethodNotAllowed: http.StatusMethodNotAllowed,
}

func statusFromError(err error) int {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return http.StatusRequestEntityTooLarge
	}
	for target, status := range errorStatusMap {
		if errors.Is(err, target) {
			return status
		}
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, fn string, err error) {
	status := statusFromError(err)
	if status >= http.StatusInternalServerError {
		logger.FromRequest(r).Err(err).Str("func", fn).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
