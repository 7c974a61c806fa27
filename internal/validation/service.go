package validation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eventgo/internal/logger"
	"eventgo/internal/models"
	"eventgo/internal/monitoring"
	"eventgo/internal/qr"
)

// DuplicateWindow is how long after a scan a re-scan of the same purchase is
// flagged as a duplicate instead of admitted silently.
const DuplicateWindow = time.Hour

var ErrScanInProgress = errors.New("another scan of this ticket is in progress")

// DBLayer is the persistence surface of the gate check.
type DBLayer interface {
	GetPurchaseByID(ctx context.Context, id string) (*models.Purchase, error)
	LastValidationSince(ctx context.Context, purchaseID string, cutoff time.Time) (*models.TicketValidation, error)
	InsertValidation(ctx context.Context, v *models.TicketValidation) error
	ListValidations(ctx context.Context, purchaseID string) ([]models.TicketValidation, error)
	GetAttendee(ctx context.Context, id string) (*models.Attendee, error)
	CheckInAttendee(ctx context.Context, id string, at time.Time) error
	ListAttendees(ctx context.Context, purchaseID string) ([]models.Attendee, error)
}

// ScanLock serializes concurrent scans of one purchase across validator
// instances.
type ScanLock interface {
	Acquire(ctx context.Context, purchaseID, validatorID string) (bool, error)
	Release(ctx context.Context, purchaseID, validatorID string) error
}

// Outcome is the gate's answer for an admitted ticket. Duplicate is true when
// the same purchase was already scanned inside the duplicate window; the
// ticket is still admitted, but the gate should show a warning.
type Outcome struct {
	Purchase    *models.Purchase         `json:"purchase"`
	Payload     *qr.CredentialPayload    `json:"payload"`
	Duplicate   bool                     `json:"duplicate"`
	LastScan    *time.Time               `json:"last_scan,omitempty"`
	Previous    *models.TicketValidation `json:"previous,omitempty"`
	ValidatedAt time.Time                `json:"validated_at"`
}

// Service checks scanned credentials against the live purchase record and
// appends a validation record per scan.
type Service struct {
	DB   DBLayer
	Lock ScanLock
	Log  *logger.Logger
	Now  func() time.Time
}

func NewService(db DBLayer, lock ScanLock, log *logger.Logger) *Service {
	return &Service{DB: db, Lock: lock, Log: log, Now: time.Now}
}

// Validate admits or rejects one scanned credential. The payload is only a
// pointer: every decision is made against the current purchase row, so a
// cancelled or refunded ticket is turned away no matter what its QR says.
func (s *Service) Validate(ctx context.Context, rawPayload, validatorID, location, notes string) (*Outcome, error) {
	payload, err := qr.Parse(rawPayload)
	if err != nil {
		monitoring.ValidationsTotal.WithLabelValues("malformed").Inc()
		return nil, err
	}

	if s.Lock != nil {
		acquired, err := s.Lock.Acquire(ctx, payload.PurchaseID, validatorID)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire scan lock: %w", err)
		}
		if !acquired {
			return nil, fmt.Errorf("purchase %s: %w", payload.PurchaseID, ErrScanInProgress)
		}
		defer func() {
			if err := s.Lock.Release(ctx, payload.PurchaseID, validatorID); err != nil && s.Log != nil {
				s.Log.Warn("REDIS", fmt.Sprintf("Failed to release scan lock for %s: %v", payload.PurchaseID, err))
			}
		}()
	}

	p, err := s.DB.GetPurchaseByID(ctx, payload.PurchaseID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// A payload pointing at no purchase is indistinguishable from a
			// forged one.
			monitoring.ValidationsTotal.WithLabelValues("malformed").Inc()
			return nil, fmt.Errorf("unknown purchase %s: %w", payload.PurchaseID, models.ErrMalformedCredential)
		}
		return nil, err
	}
	if p.Reference != payload.Reference {
		monitoring.ValidationsTotal.WithLabelValues("malformed").Inc()
		return nil, fmt.Errorf("reference mismatch for purchase %s: %w", p.ID, models.ErrMalformedCredential)
	}

	if p.Status != models.PurchasePaid {
		monitoring.ValidationsTotal.WithLabelValues("not_paid").Inc()
		return nil, fmt.Errorf("purchase %s is %s: %w", p.ID, p.Status, models.ErrNotPaid)
	}

	now := s.Now()
	event := p.TicketType.Event
	if event.HasEnded(now) {
		monitoring.ValidationsTotal.WithLabelValues("event_ended").Inc()
		return nil, fmt.Errorf("event %s: %w", event.ID, models.ErrEventEnded)
	}
	if startsAfterToday(event.StartDatetime, now) {
		monitoring.ValidationsTotal.WithLabelValues("not_yet_open").Inc()
		return nil, fmt.Errorf("event %s starts %s: %w",
			event.ID, event.StartDatetime.Format("2006-01-02"), models.ErrEventNotYetOpen)
	}

	last, err := s.DB.LastValidationSince(ctx, p.ID, now.Add(-DuplicateWindow))
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Purchase:    p,
		Payload:     payload,
		Duplicate:   last != nil,
		ValidatedAt: now,
	}

	if last != nil {
		// Re-scan inside the window: warn with the prior record, do not
		// record a second entry.
		t := last.ValidationDatetime
		outcome.LastScan = &t
		outcome.Previous = last
		monitoring.ValidationsTotal.WithLabelValues("duplicate").Inc()
		if s.Log != nil {
			s.Log.LogValidation(p.Reference, fmt.Sprintf("Duplicate scan by %s (previous %s)", validatorID, t.UTC().Format(time.RFC3339)))
		}
		return outcome, nil
	}

	record := &models.TicketValidation{
		ID:                 uuid.New().String(),
		PurchaseID:         p.ID,
		ValidatedBy:        validatorID,
		ValidationDatetime: now,
		Location:           location,
		Notes:              notes,
	}
	if err := s.DB.InsertValidation(ctx, record); err != nil {
		return nil, err
	}

	monitoring.ValidationsTotal.WithLabelValues("admitted").Inc()
	if s.Log != nil {
		s.Log.LogValidation(p.Reference, fmt.Sprintf("Admitted by %s", validatorID))
	}

	return outcome, nil
}

// startsAfterToday reports whether the event's start date is later than
// today's date. Scans on the start day are allowed even before the start
// hour, so gates can open early.
func startsAfterToday(start, now time.Time) bool {
	sy, sm, sd := start.UTC().Date()
	ny, nm, nd := now.UTC().Date()
	startDate := time.Date(sy, sm, sd, 0, 0, 0, 0, time.UTC)
	nowDate := time.Date(ny, nm, nd, 0, 0, 0, 0, time.UTC)
	return startDate.After(nowDate)
}

// CheckInAttendee marks one attendee as present. Checking in is monotonic:
// repeating it keeps the first check-in time.
func (s *Service) CheckInAttendee(ctx context.Context, attendeeID string) (*models.Attendee, error) {
	a, err := s.DB.GetAttendee(ctx, attendeeID)
	if err != nil {
		return nil, err
	}
	if a.CheckedIn {
		return a, nil
	}

	now := s.Now()
	if err := s.DB.CheckInAttendee(ctx, a.ID, now); err != nil {
		return nil, err
	}
	a.CheckedIn = true
	a.CheckInDatetime = &now

	if s.Log != nil {
		s.Log.LogValidation(a.PurchaseID, fmt.Sprintf("Attendee %s checked in", a.FullName()))
	}
	return a, nil
}

// History returns the scan records of a purchase, newest first.
func (s *Service) History(ctx context.Context, purchaseID string) ([]models.TicketValidation, error) {
	return s.DB.ListValidations(ctx, purchaseID)
}

// Attendees returns the attendee list of a purchase.
func (s *Service) Attendees(ctx context.Context, purchaseID string) ([]models.Attendee, error) {
	return s.DB.ListAttendees(ctx, purchaseID)
}
