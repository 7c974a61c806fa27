package refund

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"eventgo/internal/logger"
	"eventgo/internal/models"
	"eventgo/internal/monitoring"
	"eventgo/internal/notification"
	"eventgo/internal/payment"
	"eventgo/internal/utils"
)

// DBLayer is the persistence surface of the refund workflow.
type DBLayer interface {
	GetPaymentByID(ctx context.Context, id string) (*models.Payment, error)
	GetOutstandingRequest(ctx context.Context, paymentID string) (*models.RefundRequest, error)
	SumCompletedRefunds(ctx context.Context, paymentID string) (decimal.Decimal, error)
	InsertRequest(ctx context.Context, req *models.RefundRequest) error
	GetRequestByID(ctx context.Context, id string) (*models.RefundRequest, error)
	UpdateRequest(ctx context.Context, req *models.RefundRequest) error
	InsertRefund(ctx context.Context, r *models.Refund) error
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error
	ListRequests(ctx context.Context, status models.RefundRequestStatus) ([]models.RefundRequest, error)
	ListRequestsByUser(ctx context.Context, userID string) ([]models.RefundRequest, error)
}

// PurchaseMarker flips a paid purchase to refunded once the money is back.
type PurchaseMarker interface {
	MarkRefunded(ctx context.Context, purchaseID string) (*models.Purchase, error)
}

// Service runs the refund workflow: payer files a request, an admin reviews
// it, and an approved request is executed against the gateway. Execution
// fails open: when the gateway declines or cannot be reached, the request is
// marked failed and the purchase stays paid, so the payer can request again.
type Service struct {
	DB             DBLayer
	Gateway        payment.Gateway
	Purchases      PurchaseMarker
	Notifier       notification.Dispatcher
	Log            *logger.Logger
	GatewayTimeout time.Duration
	Now            func() time.Time
}

func NewService(db DBLayer, gateway payment.Gateway, purchases PurchaseMarker, notifier notification.Dispatcher, log *logger.Logger, gatewayTimeout time.Duration) *Service {
	return &Service{
		DB:             db,
		Gateway:        gateway,
		Purchases:      purchases,
		Notifier:       notifier,
		Log:            log,
		GatewayTimeout: gatewayTimeout,
		Now:            time.Now,
	}
}

// Request files a refund request against a payment. Only successful payments
// are refundable, the amount may not exceed what is left of the payment, and
// at most one outstanding request may exist per payment.
func (s *Service) Request(ctx context.Context, paymentID, userID string, amount decimal.Decimal, reason string) (*models.RefundRequest, error) {
	pay, err := s.DB.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if pay.UserID != userID {
		return nil, fmt.Errorf("payment %s: %w", paymentID, models.ErrNotFound)
	}
	if !pay.CanBeRefunded() {
		return nil, fmt.Errorf("payment %s is %s: %w", pay.ID, pay.Status, models.ErrNotRefundable)
	}

	refunded, err := s.DB.SumCompletedRefunds(ctx, pay.ID)
	if err != nil {
		return nil, err
	}
	if amount.LessThanOrEqual(decimal.Zero) || amount.Add(refunded).GreaterThan(pay.Amount) {
		return nil, fmt.Errorf("requested %s of payment %s (already refunded %s): %w",
			amount.StringFixed(2), pay.Amount.StringFixed(2), refunded.StringFixed(2), models.ErrAmountExceedsPayment)
	}

	outstanding, err := s.DB.GetOutstandingRequest(ctx, pay.ID)
	if err != nil {
		return nil, err
	}
	if outstanding != nil {
		return nil, fmt.Errorf("request %s is %s: %w", outstanding.ID, outstanding.Status, models.ErrDuplicateRequest)
	}

	now := s.Now()
	req := &models.RefundRequest{
		ID:          uuid.New().String(),
		PaymentID:   pay.ID,
		RequestedBy: userID,
		Amount:      amount,
		Reason:      reason,
		Status:      models.RefundRequestPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.DB.InsertRequest(ctx, req); err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.LogRefund("REQUEST", req.ID, fmt.Sprintf("%s against payment %s: %s", amount.StringFixed(2), pay.Reference, reason))
	}
	monitoring.RefundsTotal.WithLabelValues(string(models.RefundRequestPending)).Inc()

	s.notify(ctx, pay, notification.KindRefundRequested, map[string]interface{}{
		"request_id": req.ID,
		"amount":     amount.StringFixed(2),
	})

	return req, nil
}

// Review decides a pending request. Rejection just closes it; approval
// immediately executes the refund against the gateway.
func (s *Service) Review(ctx context.Context, requestID, reviewerID string, approve bool, notes string) (*models.RefundRequest, error) {
	req, err := s.DB.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.Status != models.RefundRequestPending {
		return nil, fmt.Errorf("request %s is %s: %w", req.ID, req.Status, models.ErrInvalidTransition)
	}

	req.ReviewedBy = reviewerID
	req.AdminNotes = notes
	req.UpdatedAt = s.Now()

	if !approve {
		req.Status = models.RefundRequestRejected
		if err := s.DB.UpdateRequest(ctx, req); err != nil {
			return nil, err
		}
		if s.Log != nil {
			s.Log.LogRefund("REJECT", req.ID, fmt.Sprintf("Rejected by %s", reviewerID))
		}
		monitoring.RefundsTotal.WithLabelValues(string(models.RefundRequestRejected)).Inc()
		s.notify(ctx, req.Payment, notification.KindRefundRejected, map[string]interface{}{
			"request_id": req.ID,
			"notes":      notes,
		})
		return req, nil
	}

	req.Status = models.RefundRequestApproved
	if err := s.DB.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}
	if s.Log != nil {
		s.Log.LogRefund("APPROVE", req.ID, fmt.Sprintf("Approved by %s", reviewerID))
	}
	s.notify(ctx, req.Payment, notification.KindRefundApproved, map[string]interface{}{
		"request_id": req.ID,
	})

	return s.execute(ctx, req)
}

// execute runs an approved request against the gateway and settles the
// request either way.
func (s *Service) execute(ctx context.Context, req *models.RefundRequest) (*models.RefundRequest, error) {
	pay := req.Payment
	if pay == nil {
		var err error
		pay, err = s.DB.GetPaymentByID(ctx, req.PaymentID)
		if err != nil {
			return nil, err
		}
	}

	req.Status = models.RefundRequestProcessing
	req.UpdatedAt = s.Now()
	if err := s.DB.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}

	gwCtx := ctx
	if s.GatewayTimeout > 0 {
		var cancel context.CancelFunc
		gwCtx, cancel = context.WithTimeout(ctx, s.GatewayTimeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.Gateway.Refund(gwCtx, payment.RefundRequest{
		ExternalReference: pay.ExternalReference,
		Amount:            req.Amount,
		Currency:          pay.Currency,
		Reason:            req.Reason,
	})
	monitoring.GatewayDuration.WithLabelValues("refund").Observe(time.Since(start).Seconds())
	if err != nil {
		// Gateway unreachable. Fail open: the purchase stays paid and the
		// payer may file a new request.
		if s.Log != nil {
			s.Log.Error("REFUND", fmt.Sprintf("Gateway error executing request %s: %v", req.ID, err))
		}
		return s.settleFailure(ctx, req, pay, fmt.Sprintf("gateway error: %v", err))
	}
	if !result.Success {
		return s.settleFailure(ctx, req, pay, result.FailureReason)
	}

	now := s.Now()
	refund := &models.Refund{
		ID:               uuid.New().String(),
		PaymentID:        pay.ID,
		RefundRequestID:  req.ID,
		Amount:           req.Amount,
		Reference:        utils.GenerateRefundReference(),
		Method:           pay.Method,
		Status:           models.RefundCompleted,
		ProviderResponse: result.Reference,
		CreatedAt:        now,
		ProcessedAt:      &now,
	}
	if err := s.DB.InsertRefund(ctx, refund); err != nil {
		return nil, err
	}

	req.Status = models.RefundRequestCompleted
	req.RefundReference = refund.Reference
	req.ProcessedAmount = req.Amount
	req.ProcessedAt = &now
	req.UpdatedAt = now
	if err := s.DB.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}

	refunded, err := s.DB.SumCompletedRefunds(ctx, pay.ID)
	if err != nil {
		return nil, err
	}
	if refunded.GreaterThanOrEqual(pay.Amount) {
		if err := s.DB.UpdatePaymentStatus(ctx, pay.ID, models.PaymentRefunded); err != nil {
			return nil, err
		}
		if pay.PurchaseID != "" {
			if _, err := s.Purchases.MarkRefunded(ctx, pay.PurchaseID); err != nil {
				return nil, fmt.Errorf("refund %s completed but purchase not marked: %w", refund.Reference, err)
			}
		}
	}

	if s.Log != nil {
		s.Log.LogRefund("COMPLETE", req.ID, fmt.Sprintf("Refunded %s (%s)", req.Amount.StringFixed(2), refund.Reference))
	}
	monitoring.RefundsTotal.WithLabelValues(string(models.RefundRequestCompleted)).Inc()

	s.notify(ctx, pay, notification.KindRefundCompleted, map[string]interface{}{
		"request_id":       req.ID,
		"refund_reference": refund.Reference,
		"amount":           req.Amount.StringFixed(2),
	})

	return req, nil
}

func (s *Service) settleFailure(ctx context.Context, req *models.RefundRequest, pay *models.Payment, reason string) (*models.RefundRequest, error) {
	now := s.Now()
	refund := &models.Refund{
		ID:              uuid.New().String(),
		PaymentID:       pay.ID,
		RefundRequestID: req.ID,
		Amount:          req.Amount,
		Reference:       utils.GenerateRefundReference(),
		Method:          pay.Method,
		Status:          models.RefundFailed,
		FailureReason:   reason,
		CreatedAt:       now,
		ProcessedAt:     &now,
	}
	if err := s.DB.InsertRefund(ctx, refund); err != nil {
		return nil, err
	}

	req.Status = models.RefundRequestFailed
	req.UpdatedAt = now
	if err := s.DB.UpdateRequest(ctx, req); err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.LogRefund("FAIL", req.ID, fmt.Sprintf("Execution failed: %s", reason))
	}
	monitoring.RefundsTotal.WithLabelValues(string(models.RefundRequestFailed)).Inc()

	s.notify(ctx, pay, notification.KindRefundFailed, map[string]interface{}{
		"request_id": req.ID,
		"reason":     reason,
	})

	return req, nil
}

// Get returns one refund request with relations.
func (s *Service) Get(ctx context.Context, requestID string) (*models.RefundRequest, error) {
	return s.DB.GetRequestByID(ctx, requestID)
}

// List returns refund requests, optionally filtered by status.
func (s *Service) List(ctx context.Context, status models.RefundRequestStatus) ([]models.RefundRequest, error) {
	return s.DB.ListRequests(ctx, status)
}

// ListByUser returns the requests one payer has filed.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.RefundRequest, error) {
	return s.DB.ListRequestsByUser(ctx, userID)
}

func (s *Service) notify(ctx context.Context, pay *models.Payment, kind notification.EventKind, payload map[string]interface{}) {
	if s.Notifier == nil || pay == nil {
		return
	}
	var recipient string
	if pay.Purchase != nil && pay.Purchase.User != nil {
		recipient = pay.Purchase.User.Email
	}
	if recipient == "" {
		// No address to deliver to; an opaque user id is not one.
		if s.Log != nil {
			s.Log.Warn("NOTIFY", fmt.Sprintf("No buyer email for payment %s, skipping %s", pay.ID, kind))
		}
		return
	}
	msg := notification.Message{
		Recipient: recipient,
		Kind:      kind,
		Channel:   notification.ChannelEmail,
		Payload:   payload,
	}
	if err := s.Notifier.Dispatch(ctx, msg); err != nil && s.Log != nil {
		s.Log.Warn("NOTIFY", fmt.Sprintf("Failed to dispatch %s for payment %s: %v", kind, pay.ID, err))
	}
}
