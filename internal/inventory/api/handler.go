package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventgo/internal/inventory"
	"eventgo/internal/logger"
	"eventgo/internal/utils"
)

type Handler struct {
	Service *inventory.Service
	Logger  *logger.Logger
}

func NewHandler(service *inventory.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts the read side for everyone.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events/{eventId}/ticket-types", h.ListTicketTypes)
	r.Get("/ticket-types/{ticketTypeId}", h.GetTicketType)
}

// RegisterAdminRoutes mounts the management side for organizers and admins.
func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/events/{eventId}/ticket-types", h.CreateTicketType)
	r.Put("/ticket-types/{ticketTypeId}", h.UpdateTicketType)
	r.Delete("/ticket-types/{ticketTypeId}", h.DeleteTicketType)
	r.Post("/ticket-types/{ticketTypeId}/reconcile", h.ReconcileTicketType)
}

func (h *Handler) ListTicketTypes(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	types, err := h.Service.ListTicketTypes(r.Context(), eventID)
	if err != nil {
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not list ticket types", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket types retrieved", types))
}

func (h *Handler) GetTicketType(w http.ResponseWriter, r *http.Request) {
	ticketTypeID := chi.URLParam(r, "ticketTypeId")

	tt, err := h.Service.GetTicketType(r.Context(), ticketTypeID)
	if err != nil {
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Ticket type not found", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket type retrieved", tt))
}

func (h *Handler) CreateTicketType(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	var in inventory.TicketTypeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	tt, err := h.Service.CreateTicketType(r.Context(), eventID, in)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateTicketType: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Could not create ticket type", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Ticket type created", tt))
}

func (h *Handler) UpdateTicketType(w http.ResponseWriter, r *http.Request) {
	ticketTypeID := chi.URLParam(r, "ticketTypeId")

	var in inventory.TicketTypeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	tt, err := h.Service.UpdateTicketType(r.Context(), ticketTypeID, in)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateTicketType: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not update ticket type", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket type updated", tt))
}

func (h *Handler) DeleteTicketType(w http.ResponseWriter, r *http.Request) {
	ticketTypeID := chi.URLParam(r, "ticketTypeId")

	if err := h.Service.DeleteTicketType(r.Context(), ticketTypeID); err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteTicketType: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not delete ticket type", err.Error()))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ReconcileTicketType recomputes the sold counter from paid purchases.
func (h *Handler) ReconcileTicketType(w http.ResponseWriter, r *http.Request) {
	ticketTypeID := chi.URLParam(r, "ticketTypeId")

	sold, err := h.Service.Reconcile(r.Context(), ticketTypeID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ReconcileTicketType: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not reconcile ticket type", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket type reconciled", map[string]int{"quantity_sold": sold}))
}
