package utils

import (
	"encoding/json"
	"errors"
	"net/http"

	"eventgo/internal/models"
)

// WriteJSON writes an APIResponse with the given status code.
func WriteJSON(w http.ResponseWriter, status int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// StatusForError maps domain failure kinds to HTTP status codes. Malformed
// input is the caller's fault (400); everything else that is a known kind is
// a state conflict (409). Unknown errors are internal.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrMalformedCredential),
		errors.Is(err, models.ErrAmountExceedsPayment),
		errors.Is(err, models.ErrAttendeeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInventoryExhausted),
		errors.Is(err, models.ErrEventClosed),
		errors.Is(err, models.ErrNotCancellable),
		errors.Is(err, models.ErrNotPaid),
		errors.Is(err, models.ErrEventNotYetOpen),
		errors.Is(err, models.ErrEventEnded),
		errors.Is(err, models.ErrNotRefundable),
		errors.Is(err, models.ErrDuplicateRequest),
		errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
