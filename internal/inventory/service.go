package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"eventgo/internal/logger"
	"eventgo/internal/models"
)

// Store is the persistence surface of the ledger. Methods take a bun.IDB so
// the purchase flow can run them inside its own transaction.
type Store interface {
	TicketTypeForUpdate(ctx context.Context, idb bun.IDB, id string) (*models.TicketType, error)
	SumPaidQuantity(ctx context.Context, idb bun.IDB, ticketTypeID string) (int, error)
	Reconcile(ctx context.Context, idb bun.IDB, ticketTypeID string) (int, error)
	InsertTicketType(ctx context.Context, idb bun.IDB, tt *models.TicketType) error
	UpdateTicketTypeRow(ctx context.Context, idb bun.IDB, tt *models.TicketType) error
	CountBlockingPurchases(ctx context.Context, idb bun.IDB, ticketTypeID string) (int, error)
	DeleteTicketTypeRow(ctx context.Context, idb bun.IDB, ticketTypeID string) error
	ListTicketTypes(ctx context.Context, idb bun.IDB, eventID string) ([]models.TicketType, error)
}

// Service answers "can N units of this ticket type be sold right now?" and
// keeps the cached quantity_sold consistent with paid purchases.
type Service struct {
	Bun *bun.DB
	DB  Store
	Log *logger.Logger
}

func NewService(bunDB *bun.DB, store Store, log *logger.Logger) *Service {
	return &Service{Bun: bunDB, DB: store, Log: log}
}

// Remaining returns the sellable quantity for a ticket type.
func (s *Service) Remaining(t *models.TicketType) int {
	return t.Remaining()
}

// IsPurchasable reports whether quantity units can be sold at the given
// instant: the ticket type must be active, the quantity within (0, remaining],
// and now inside the sale window when one is set.
func (s *Service) IsPurchasable(t *models.TicketType, quantity int, now time.Time) bool {
	if !t.IsActive {
		return false
	}
	if quantity <= 0 || quantity > t.Remaining() {
		return false
	}
	return t.InSaleWindow(now)
}

// TicketTypeInput carries the editable fields of a ticket type.
type TicketTypeInput struct {
	Name              string          `json:"name"`
	Description       string          `json:"description,omitempty"`
	Price             decimal.Decimal `json:"price"`
	QuantityAvailable int             `json:"quantity_available"`
	IsActive          *bool           `json:"is_active,omitempty"`
	SaleStartDatetime *time.Time      `json:"sale_start_datetime,omitempty"`
	SaleEndDatetime   *time.Time      `json:"sale_end_datetime,omitempty"`
}

// CreateTicketType registers a new ticket class for an event.
func (s *Service) CreateTicketType(ctx context.Context, eventID string, in TicketTypeInput) (*models.TicketType, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("ticket type name is required")
	}
	if in.QuantityAvailable <= 0 {
		return nil, fmt.Errorf("quantity_available must be positive")
	}
	if in.Price.IsNegative() {
		return nil, fmt.Errorf("price cannot be negative")
	}

	now := time.Now()
	tt := &models.TicketType{
		ID:                uuid.New().String(),
		EventID:           eventID,
		Name:              in.Name,
		Description:       in.Description,
		Price:             in.Price,
		QuantityAvailable: in.QuantityAvailable,
		IsActive:          true,
		SaleStartDatetime: in.SaleStartDatetime,
		SaleEndDatetime:   in.SaleEndDatetime,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.IsActive != nil {
		tt.IsActive = *in.IsActive
	}

	if err := s.DB.InsertTicketType(ctx, s.Bun, tt); err != nil {
		return nil, err
	}
	if s.Log != nil {
		s.Log.LogDatabase("INSERT", "ticket_types", fmt.Sprintf("Created %s for event %s (%d available)", tt.Name, eventID, tt.QuantityAvailable))
	}
	return tt, nil
}

// UpdateTicketType edits a ticket type under its row lock. The availability
// floor is what has already been sold: lowering quantity_available below
// quantity_sold is rejected, since it would turn admitted tickets into
// oversells.
func (s *Service) UpdateTicketType(ctx context.Context, ticketTypeID string, in TicketTypeInput) (*models.TicketType, error) {
	var updated *models.TicketType
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tt, err := s.DB.TicketTypeForUpdate(ctx, tx, ticketTypeID)
		if err != nil {
			return err
		}

		if in.QuantityAvailable < tt.QuantitySold {
			return fmt.Errorf("cannot lower quantity_available to %d below %d already sold: %w",
				in.QuantityAvailable, tt.QuantitySold, models.ErrInvalidTransition)
		}

		tt.Name = in.Name
		tt.Description = in.Description
		tt.Price = in.Price
		tt.QuantityAvailable = in.QuantityAvailable
		if in.IsActive != nil {
			tt.IsActive = *in.IsActive
		}
		tt.SaleStartDatetime = in.SaleStartDatetime
		tt.SaleEndDatetime = in.SaleEndDatetime
		tt.UpdatedAt = time.Now()

		if err := s.DB.UpdateTicketTypeRow(ctx, tx, tt); err != nil {
			return err
		}
		updated = tt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteTicketType removes a ticket type that has never been meaningfully
// sold. Any non-cancelled purchase blocks deletion; deactivate instead.
func (s *Service) DeleteTicketType(ctx context.Context, ticketTypeID string) error {
	return s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.DB.TicketTypeForUpdate(ctx, tx, ticketTypeID); err != nil {
			return err
		}
		blocking, err := s.DB.CountBlockingPurchases(ctx, tx, ticketTypeID)
		if err != nil {
			return err
		}
		if blocking > 0 {
			return fmt.Errorf("%d purchases still reference ticket type %s: %w",
				blocking, ticketTypeID, models.ErrInvalidTransition)
		}
		return s.DB.DeleteTicketTypeRow(ctx, tx, ticketTypeID)
	})
}

// GetTicketType fetches one ticket type with its event.
func (s *Service) GetTicketType(ctx context.Context, ticketTypeID string) (*models.TicketType, error) {
	return s.DB.TicketTypeForUpdate(ctx, s.Bun, ticketTypeID)
}

// ListTicketTypes returns an event's ticket types.
func (s *Service) ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	return s.DB.ListTicketTypes(ctx, s.Bun, eventID)
}

// Reconcile recomputes quantity_sold for a ticket type in its own
// transaction, locking the row so concurrent reconciles serialize.
func (s *Service) Reconcile(ctx context.Context, ticketTypeID string) (int, error) {
	var sold int
	err := s.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.DB.TicketTypeForUpdate(ctx, tx, ticketTypeID); err != nil {
			return err
		}
		n, err := s.DB.Reconcile(ctx, tx, ticketTypeID)
		if err != nil {
			return err
		}
		sold = n
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("reconcile failed for ticket type %s: %w", ticketTypeID, err)
	}
	if s.Log != nil {
		s.Log.LogDatabase("RECONCILE", "ticket_types", fmt.Sprintf("ticket type %s now has %d sold", ticketTypeID, sold))
	}
	return sold, nil
}
