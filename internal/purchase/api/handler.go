package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eventgo/internal/auth"
	"eventgo/internal/logger"
	"eventgo/internal/models"
	"eventgo/internal/payment"
	"eventgo/internal/purchase"
	"eventgo/internal/utils"
)

type Handler struct {
	Service *purchase.Service
	Gateway payment.Gateway
	Logger  *logger.Logger
}

func NewHandler(service *purchase.Service, gateway payment.Gateway, log *logger.Logger) *Handler {
	return &Handler{
		Service: service,
		Gateway: gateway,
		Logger:  log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/purchases", h.CreatePurchase)
	r.Get("/purchases/{purchaseId}", h.GetPurchase)
	r.Get("/purchases/{purchaseId}/qr", h.GetPurchaseQR)
	r.Post("/purchases/{purchaseId}/cancel", h.CancelPurchase)
	r.Get("/users/me/purchases", h.ListMyPurchases)
}

type createPurchaseRequest struct {
	TicketTypeID  string                   `json:"ticket_type_id"`
	Quantity      int                      `json:"quantity"`
	PaymentMethod string                   `json:"payment_method"`
	Attendees     []purchase.AttendeeInput `json:"attendees,omitempty"`
}

// CreatePurchase runs the whole buy flow: register a pending purchase,
// capture through the gateway, then confirm or fail depending on the verdict.
// A declined capture is a 402 carrying the cancelled purchase.
func (h *Handler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePurchase: failed to decode request body: %v", err))
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if req.TicketTypeID == "" || req.Quantity <= 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Validation failed", "ticket_type_id and a positive quantity are required"))
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.MethodMobileMoney
	}

	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing user identity"))
		return
	}

	p, err := h.Service.Create(r.Context(), req.TicketTypeID, userID, req.Quantity, req.PaymentMethod)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePurchase: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not create purchase", err.Error()))
		return
	}

	capture, err := h.Gateway.Capture(r.Context(), payment.CaptureRequest{
		Amount:      p.TotalAmount,
		Currency:    h.Service.Currency,
		Method:      req.PaymentMethod,
		Reference:   p.Reference,
		PurchaseID:  p.ID,
		Description: fmt.Sprintf("Ticket purchase %s", p.Reference),
	})
	if err != nil {
		// Gateway unreachable: the purchase stays pending for a retry.
		h.Logger.Error("API", fmt.Sprintf("CreatePurchase: gateway error for %s: %v", p.Reference, err))
		utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse("Payment gateway unavailable", err.Error()))
		return
	}

	if !capture.Success {
		failed, err := h.Service.FailPayment(r.Context(), p.ID, capture.FailureReason)
		if err != nil {
			h.Logger.Error("API", fmt.Sprintf("CreatePurchase: failed to record declined capture for %s: %v", p.Reference, err))
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not record payment failure", err.Error()))
			return
		}
		utils.WriteJSON(w, http.StatusPaymentRequired, utils.ErrorResponse("Payment declined: "+capture.FailureReason, string(failed.Status)))
		return
	}

	confirmed, err := h.Service.ConfirmPayment(r.Context(), p.ID, capture, req.Attendees)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePurchase: failed to confirm %s: %v", p.Reference, err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not confirm purchase", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Purchase confirmed", confirmed))
}

func (h *Handler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")

	p, err := h.Service.Get(r.Context(), purchaseID)
	if err != nil {
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Purchase not found", err.Error()))
		return
	}

	if !h.mayAccess(r, p) {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "purchase belongs to another user"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Purchase retrieved", p))
}

// GetPurchaseQR serves the credential PNG for a paid purchase.
func (h *Handler) GetPurchaseQR(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")

	p, err := h.Service.Get(r.Context(), purchaseID)
	if err != nil {
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Purchase not found", err.Error()))
		return
	}

	if !h.mayAccess(r, p) {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "purchase belongs to another user"))
		return
	}
	if !p.HasCredential() {
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("No credential", "purchase is not paid"))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(p.QRCodePNG)
}

func (h *Handler) CancelPurchase(w http.ResponseWriter, r *http.Request) {
	purchaseID := chi.URLParam(r, "purchaseId")

	p, err := h.Service.Get(r.Context(), purchaseID)
	if err != nil {
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Purchase not found", err.Error()))
		return
	}
	if !h.mayAccess(r, p) {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "purchase belongs to another user"))
		return
	}

	cancelled, err := h.Service.Cancel(r.Context(), purchaseID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelPurchase: %v", err))
		utils.WriteJSON(w, utils.StatusForError(err), utils.ErrorResponse("Could not cancel purchase", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Purchase cancelled", cancelled))
}

func (h *Handler) ListMyPurchases(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing user identity"))
		return
	}

	purchases, err := h.Service.ListByUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			purchases = nil
		} else {
			utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not list purchases", err.Error()))
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Purchases retrieved", purchases))
}

// mayAccess allows the owner, organizers and admins.
func (h *Handler) mayAccess(r *http.Request, p *models.Purchase) bool {
	role := auth.Role(r.Context())
	if role == "admin" || role == "organizer" {
		return true
	}
	return auth.UserID(r.Context()) == p.UserID
}
