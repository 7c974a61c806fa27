package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventgo/internal/auth"
	"eventgo/internal/logger"
	"eventgo/internal/utils"
	"eventgo/internal/validation"
)

type Handler struct {
	Service *validation.Service
	Logger  *logger.Logger
}

func NewHandler(service *validation.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/validations", h.ValidateTicket)
	r.Get("/purchases/{purchaseId}/validations", h.GetValidationHistory)
	r.Get("/purchases/{purchaseId}/attendees", h.ListAttendees)
	r.Post("/attendees/{attendeeId}/check-in", h.CheckInAttendee)
}

type validateRequest struct {
	Payload  string `json:"payload"`
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// ValidateTicket checks one scanned QR payload. A duplicate scan inside the
// warning window is still a 200; the outcome carries the duplicate flag.
func (h *Handler) ValidateTicket(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if req.Payload == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Validation failed", "payload is required"))
		return
	}

	validatorID := auth.UserID(r.Context())
	outcome, err := h.Service.Validate(r.Context(), req.Payload, validatorID, req.Location, req.Notes)
	if err != nil {
		if errors.Is(err, validation.ErrScanInProgress) {
			utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Scan in progress", err.Error()))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("ValidateTicket: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Ticket rejected", err.Error()))
		return
	}

	message := "Ticket admitted"
	if outcome.Duplicate {
		message = "Ticket admitted (already scanned recently)"
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(message, outcome))
}

func (h *Handler) GetValidationHistory(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")

	history, err := h.Service.History(r.Context(), purchaseID)
	if err != nil {
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not load validation history", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Validation history retrieved", history))
}

func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")

	attendees, err := h.Service.Attendees(r.Context(), purchaseID)
	if err != nil {
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not load attendees", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Attendees retrieved", attendees))
}

func (h *Handler) CheckInAttendee(w http.ResponseWriter, r *http.Request) {
	attendeeID := chi.URLParam(r, "attendeeId")

	attendee, err := h.Service.CheckInAttendee(r.Context(), attendeeID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CheckInAttendee: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not check in attendee", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Attendee checked in", attendee))
}
