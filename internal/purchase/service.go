package purchase

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

// DBLayer is the persistence surface of the purchase state machine. Its
// transition methods are atomic: each one runs the purchase change and the
// inventory reconcile in a single transaction.
type DBLayer interface {
	GetTicketTypeWithEvent(ctx context.Context, id string) (*models.TicketType, error)
	GetPurchaseByID(ctx context.Context, id string) (*models.Purchase, error)
	GetPurchasesByUser(ctx context.Context, userID string) ([]models.Purchase, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreatePurchase(ctx context.Context, p *models.Purchase, now time.Time) error
	ConfirmPurchase(ctx context.Context, p *models.Purchase, pay *models.Payment, attendees []*models.Attendee) error
	FailPurchase(ctx context.Context, p *models.Purchase, pay *models.Payment) error
	CancelPurchase(ctx context.Context, p *models.Purchase, wasPaid bool) error
	MarkRefundedPurchase(ctx context.Context, p *models.Purchase) error
	HasValidation(ctx context.Context, purchaseID string) (bool, error)
}

// CredentialIssuer mints the QR credential for a paid purchase.
type CredentialIssuer interface {
	Issue(p *models.Purchase, user *models.User, now time.Time) (string, []byte, error)
}

// AttendeeInput is the caller-supplied participant list for a group booking.
type AttendeeInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// Service owns the purchase lifecycle: pending -> paid | cancelled, and
// paid -> cancelled | refunded. Inventory effects ride along inside the
// DB layer transactions.
type Service struct {
	DB       DBLayer
	QR       CredentialIssuer
	Notifier notification.Dispatcher
	Log      *logger.Logger
	Currency string
	Now      func() time.Time
}

func NewService(db DBLayer, qr CredentialIssuer, notifier notification.Dispatcher, log *logger.Logger, currency string) *Service {
	return &Service{
		DB:       db,
		QR:       qr,
		Notifier: notifier,
		Log:      log,
		Currency: currency,
		Now:      time.Now,
	}
}

// Create registers a pending purchase for quantity units of a ticket type.
// Availability is checked twice: here for a fast answer, and again under the
// row lock inside the insert transaction.
func (s *Service) Create(ctx context.Context, ticketTypeID, userID string, quantity int, paymentMethod string) (*models.Purchase, error) {
	tt, err := s.DB.GetTicketTypeWithEvent(ctx, ticketTypeID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	if tt.Event != nil && tt.Event.HasEnded(now) {
		return nil, fmt.Errorf("event %s: %w", tt.EventID, models.ErrEventClosed)
	}
	if quantity <= 0 || quantity > tt.Remaining() || !tt.IsActive || !tt.InSaleWindow(now) {
		return nil, fmt.Errorf("ticket type %s: %w", tt.ID, models.ErrInventoryExhausted)
	}

	p := &models.Purchase{
		ID:            uuid.New().String(),
		TicketTypeID:  tt.ID,
		UserID:        userID,
		Quantity:      quantity,
		UnitPrice:     tt.Price,
		TotalAmount:   tt.Price.Mul(decimal.NewFromInt(int64(quantity))).Round(2),
		Status:        models.PurchasePending,
		Reference:     utils.GeneratePurchaseReference(),
		PaymentMethod: paymentMethod,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.DB.CreatePurchase(ctx, p, now); err != nil {
		return nil, err
	}
	p.TicketType = tt

	if s.Log != nil {
		s.Log.LogPurchase("CREATE", p.Reference,
			fmt.Sprintf("%d x %s for user %s (%s)", quantity, tt.Name, userID, p.TotalAmount.StringFixed(2)))
	}
	monitoring.PurchasesTotal.WithLabelValues(string(models.PurchasePending)).Inc()

	return p, nil
}

// ConfirmPayment applies pending -> paid after a successful gateway capture:
// the QR credential is issued, a success payment row recorded, attendee rows
// created, and the sold counter reconciled, all in one transaction.
func (s *Service) ConfirmPayment(ctx context.Context, purchaseID string, capture *payment.Result, attendees []AttendeeInput) (*models.Purchase, error) {
	if capture == nil || !capture.Success {
		return nil, fmt.Errorf("cannot confirm purchase %s without a successful capture", purchaseID)
	}

	p, err := s.DB.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PurchasePending {
		return nil, fmt.Errorf("purchase %s is %s: %w", p.ID, p.Status, models.ErrInvalidTransition)
	}
	if len(attendees) > 0 && len(attendees) != p.Quantity {
		return nil, fmt.Errorf("got %d attendees for quantity %d: %w", len(attendees), p.Quantity, models.ErrAttendeeMismatch)
	}

	user := p.User
	if user == nil {
		user, err = s.DB.GetUserByID(ctx, p.UserID)
		if err != nil {
			return nil, err
		}
	}

	now := s.Now()
	qrData, qrPNG, err := s.QR.Issue(p, user, now)
	if err != nil {
		return nil, fmt.Errorf("failed to issue credential for purchase %s: %w", p.ID, err)
	}

	pay := &models.Payment{
		ID:                uuid.New().String(),
		Reference:         utils.GeneratePaymentReference(),
		ExternalReference: capture.Reference,
		Amount:            p.TotalAmount,
		Currency:          s.Currency,
		Method:            p.PaymentMethod,
		Status:            models.PaymentSuccess,
		UserID:            p.UserID,
		PurchaseID:        p.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
		ProcessedAt:       &now,
	}

	rows := make([]*models.Attendee, 0, len(attendees))
	for _, a := range attendees {
		rows = append(rows, &models.Attendee{
			ID:         uuid.New().String(),
			PurchaseID: p.ID,
			FirstName:  a.FirstName,
			LastName:   a.LastName,
			Email:      a.Email,
			Phone:      a.Phone,
			CreatedAt:  now,
		})
	}
	if len(rows) == 0 {
		// No explicit list: the buyer attends.
		rows = append(rows, &models.Attendee{
			ID:         uuid.New().String(),
			PurchaseID: p.ID,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
			Email:      user.Email,
			Phone:      user.Phone,
			CreatedAt:  now,
		})
	}

	p.Status = models.PurchasePaid
	p.PaidAt = &now
	p.PaymentReference = pay.Reference
	p.QRCodeData = qrData
	p.QRCodePNG = qrPNG
	p.UpdatedAt = now

	if err := s.DB.ConfirmPurchase(ctx, p, pay, rows); err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.LogPurchase("CONFIRM", p.Reference, fmt.Sprintf("Paid via %s (%s)", p.PaymentMethod, pay.Reference))
	}
	monitoring.PurchasesTotal.WithLabelValues(string(models.PurchasePaid)).Inc()

	s.notify(ctx, user.Email, notification.KindPurchaseConfirmed, map[string]interface{}{
		"purchase_reference": p.Reference,
		"quantity":           p.Quantity,
		"total_amount":       p.TotalAmount.StringFixed(2),
	})

	return p, nil
}

// FailPayment applies pending -> cancelled after a declined capture. The
// failed attempt is recorded as a payment row for the audit trail.
func (s *Service) FailPayment(ctx context.Context, purchaseID, reason string) (*models.Purchase, error) {
	p, err := s.DB.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PurchasePending {
		return nil, fmt.Errorf("purchase %s is %s: %w", p.ID, p.Status, models.ErrInvalidTransition)
	}

	now := s.Now()
	pay := &models.Payment{
		ID:            uuid.New().String(),
		Reference:     utils.GeneratePaymentReference(),
		Amount:        p.TotalAmount,
		Currency:      s.Currency,
		Method:        p.PaymentMethod,
		Status:        models.PaymentFailed,
		UserID:        p.UserID,
		PurchaseID:    p.ID,
		FailureReason: reason,
		CreatedAt:     now,
		UpdatedAt:     now,
		ProcessedAt:   &now,
	}

	p.Status = models.PurchaseCancelled
	p.UpdatedAt = now

	if err := s.DB.FailPurchase(ctx, p, pay); err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.LogPurchase("FAIL", p.Reference, fmt.Sprintf("Capture declined: %s", reason))
	}
	monitoring.PurchasesTotal.WithLabelValues("failed").Inc()

	if p.User != nil {
		s.notify(ctx, p.User.Email, notification.KindPaymentFailed, map[string]interface{}{
			"purchase_reference": p.Reference,
			"reason":             reason,
		})
	}

	return p, nil
}

// Cancel voids a pending or paid purchase. A purchase is no longer
// cancellable once its event has started or its ticket has been scanned at
// the gate.
func (s *Service) Cancel(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	p, err := s.DB.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PurchasePending && p.Status != models.PurchasePaid {
		return nil, fmt.Errorf("purchase %s is %s: %w", p.ID, p.Status, models.ErrNotCancellable)
	}

	now := s.Now()
	if p.TicketType != nil && p.TicketType.Event != nil && p.TicketType.Event.HasStarted(now) {
		return nil, fmt.Errorf("event has started: %w", models.ErrNotCancellable)
	}

	validated, err := s.DB.HasValidation(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if validated {
		return nil, fmt.Errorf("ticket already used for entry: %w", models.ErrNotCancellable)
	}

	wasPaid := p.Status == models.PurchasePaid
	p.Status = models.PurchaseCancelled
	p.UpdatedAt = now

	if err := s.DB.CancelPurchase(ctx, p, wasPaid); err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.LogPurchase("CANCEL", p.Reference, fmt.Sprintf("Cancelled (was paid: %t)", wasPaid))
	}
	monitoring.PurchasesTotal.WithLabelValues(string(models.PurchaseCancelled)).Inc()

	if p.User != nil {
		s.notify(ctx, p.User.Email, notification.KindPurchaseCancelled, map[string]interface{}{
			"purchase_reference": p.Reference,
		})
	}

	return p, nil
}

// MarkRefunded applies paid -> refunded after a completed refund execution.
// The refund workflow owns the gateway call; this only flips the state and
// releases inventory.
func (s *Service) MarkRefunded(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	p, err := s.DB.GetPurchaseByID(ctx, purchaseID)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PurchasePaid {
		return nil, fmt.Errorf("purchase %s is %s: %w", p.ID, p.Status, models.ErrInvalidTransition)
	}

	p.Status = models.PurchaseRefunded
	p.UpdatedAt = s.Now()

	if err := s.DB.MarkRefundedPurchase(ctx, p); err != nil {
		return nil, err
	}

	if s.Log != nil {
		s.Log.LogPurchase("REFUND", p.Reference, "Marked refunded, inventory released")
	}
	monitoring.PurchasesTotal.WithLabelValues(string(models.PurchaseRefunded)).Inc()

	return p, nil
}

// Get returns a purchase with its relations loaded.
func (s *Service) Get(ctx context.Context, purchaseID string) (*models.Purchase, error) {
	return s.DB.GetPurchaseByID(ctx, purchaseID)
}

// ListByUser returns a buyer's purchase history.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]models.Purchase, error) {
	return s.DB.GetPurchasesByUser(ctx, userID)
}

func (s *Service) notify(ctx context.Context, recipient string, kind notification.EventKind, payload map[string]interface{}) {
	if s.Notifier == nil || recipient == "" {
		return
	}
	msg := notification.Message{
		Recipient: recipient,
		Kind:      kind,
		Channel:   notification.ChannelEmail,
		Payload:   payload,
	}
	if err := s.Notifier.Dispatch(ctx, msg); err != nil && s.Log != nil {
		s.Log.Warn("NOTIFY", fmt.Sprintf("Failed to dispatch %s for %s: %v", kind, recipient, err))
	}
}
