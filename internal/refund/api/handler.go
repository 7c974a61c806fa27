package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"eventgo/internal/auth"
	"eventgo/internal/logger"
	"eventgo/internal/models"
	"eventgo/internal/refund"
	"eventgo/internal/utils"
)

type Handler struct {
	Service *refund.Service
	Logger  *logger.Logger
}

func NewHandler(service *refund.Service, log *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: log}
}

// RegisterRoutes mounts payer routes; review routes go behind an admin gate
// in RegisterAdminRoutes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/refund-requests", h.CreateRequest)
	r.Get("/refund-requests/{requestId}", h.GetRequest)
	r.Get("/users/me/refund-requests", h.ListMyRequests)
}

func (h *Handler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/refund-requests", h.ListRequests)
	r.Post("/refund-requests/{requestId}/review", h.ReviewRequest)
}

type createRequestBody struct {
	PaymentID string          `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if body.PaymentID == "" || body.Reason == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Validation failed", "payment_id and reason are required"))
		return
	}

	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing user identity"))
		return
	}

	req, err := h.Service.Request(r.Context(), body.PaymentID, userID, body.Amount, body.Reason)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateRequest: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not file refund request", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Refund request filed", req))
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	req, err := h.Service.Get(r.Context(), requestID)
	if err != nil {
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Refund request not found", err.Error()))
		return
	}

	role := auth.Role(r.Context())
	if role != "admin" && role != "organizer" && auth.UserID(r.Context()) != req.RequestedBy {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "refund request belongs to another user"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Refund request retrieved", req))
}

func (h *Handler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing user identity"))
		return
	}

	requests, err := h.Service.ListByUser(r.Context(), userID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not list refund requests", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Refund requests retrieved", requests))
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	status := models.RefundRequestStatus(r.URL.Query().Get("status"))

	requests, err := h.Service.List(r.Context(), status)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not list refund requests", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Refund requests retrieved", requests))
}

type reviewRequestBody struct {
	Approve bool   `json:"approve"`
	Notes   string `json:"notes,omitempty"`
}

// ReviewRequest settles a pending request. Approval executes the refund
// synchronously; the response carries the final request state, completed or
// failed.
func (h *Handler) ReviewRequest(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestId")

	var body reviewRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	reviewerID := auth.UserID(r.Context())
	req, err := h.Service.Review(r.Context(), requestID, reviewerID, body.Approve, body.Notes)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ReviewRequest: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not review refund request", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("Refund request %s", req.Status), req))
}
