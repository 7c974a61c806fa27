package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"eventgo/internal/logger"
	"eventgo/internal/models"
	"eventgo/internal/payment"
	"eventgo/internal/purchase"
	"eventgo/internal/utils"
)

// PurchaseService is the slice of the purchase state machine the webhook
// needs to settle asynchronous captures.
type PurchaseService interface {
	ConfirmPayment(ctx context.Context, purchaseID string, capture *payment.Result, attendees []purchase.AttendeeInput) (*models.Purchase, error)
	FailPayment(ctx context.Context, purchaseID, reason string) (*models.Purchase, error)
}

// WebhookHandler settles purchases whose captures complete asynchronously:
// Stripe confirms or fails the payment intent out of band and calls back
// here.
type WebhookHandler struct {
	purchases PurchaseService
	logger    *logger.Logger
}

func NewWebhookHandler(purchases PurchaseService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{purchases: purchases, logger: log}
}

func (h *WebhookHandler) RegisterRoutes(r *gin.Engine) {
	r.POST("/webhooks/stripe", h.HandleStripeWebhook)
}

func (h *WebhookHandler) HandleStripeWebhook(c *gin.Context) {
	secret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	if secret == "" {
		h.logError("STRIPE_WEBHOOK_SECRET is not configured")
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Webhook processing error", "webhook secret not configured"))
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook payload", err.Error()))
		return
	}

	opts := webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true}
	event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), secret, opts)
	if err != nil {
		h.logError(fmt.Sprintf("Signature verification failed: %v", err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid webhook signature", err.Error()))
		return
	}

	if h.logger != nil {
		h.logger.Info("WEBHOOK", fmt.Sprintf("Processing Stripe event: %s", event.Type))
	}

	switch event.Type {
	case "payment_intent.succeeded":
		h.handlePaymentIntent(c, event, true)
	case "payment_intent.payment_failed":
		h.handlePaymentIntent(c, event, false)
	default:
		if h.logger != nil {
			h.logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring event type: %s", event.Type))
		}
		c.JSON(http.StatusOK, utils.SuccessResponse("Event ignored", nil))
	}
}

func (h *WebhookHandler) handlePaymentIntent(c *gin.Context, event stripe.Event, succeeded bool) {
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		h.logError(fmt.Sprintf("Failed to unmarshal payment intent: %v", err))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid event data", err.Error()))
		return
	}

	purchaseID, ok := pi.Metadata["purchase_id"]
	if !ok || purchaseID == "" {
		h.logError(fmt.Sprintf("Payment intent %s has no purchase_id in metadata", pi.ID))
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid payment intent data", "missing purchase_id metadata"))
		return
	}

	if succeeded {
		_, err := h.purchases.ConfirmPayment(c.Request.Context(), purchaseID, &payment.Result{
			Success:   true,
			Reference: pi.ID,
		}, nil)
		if err != nil {
			// A purchase settled by the synchronous path reaches here as an
			// invalid transition; the webhook is then just a late echo.
			if errors.Is(err, models.ErrInvalidTransition) {
				c.JSON(http.StatusOK, utils.SuccessResponse("Purchase already settled", nil))
				return
			}
			h.logError(fmt.Sprintf("Failed to confirm purchase %s: %v", purchaseID, err))
			c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to process payment", err.Error()))
			return
		}
		c.JSON(http.StatusOK, utils.SuccessResponse("Purchase confirmed", nil))
		return
	}

	reason := "payment failed"
	if pi.LastPaymentError != nil {
		reason = pi.LastPaymentError.Msg
	}
	_, err := h.purchases.FailPayment(c.Request.Context(), purchaseID, reason)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			c.JSON(http.StatusOK, utils.SuccessResponse("Purchase already settled", nil))
			return
		}
		h.logError(fmt.Sprintf("Failed to fail purchase %s: %v", purchaseID, err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Failed to process payment failure", err.Error()))
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Purchase cancelled after failed payment", nil))
}

func (h *WebhookHandler) logError(msg string) {
	if h.logger != nil {
		h.logger.Error("WEBHOOK", msg)
	}
}
