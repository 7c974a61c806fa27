package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"eventgo/internal/models"
)

// InventoryStore is the slice of the inventory ledger the purchase flow needs
// inside its transactions.
type InventoryStore interface {
	TicketTypeForUpdate(ctx context.Context, idb bun.IDB, id string) (*models.TicketType, error)
	Reconcile(ctx context.Context, idb bun.IDB, ticketTypeID string) (int, error)
}

// DB implements the purchase persistence layer. Every status transition that
// touches inventory runs as one transaction: lock the ticket type row, apply
// the purchase change, reconcile the sold counter. Two concurrent
// confirmations of the same ticket type therefore serialize, and the second
// one rolls back if it would oversell.
type DB struct {
	Bun       *bun.DB
	Inventory InventoryStore
}

// GetTicketTypeWithEvent fetches a ticket type and its event, unlocked.
func (d *DB) GetTicketTypeWithEvent(ctx context.Context, id string) (*models.TicketType, error) {
	var tt models.TicketType
	err := d.Bun.NewSelect().
		Model(&tt).
		Relation("Event").
		Where("tt.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket type %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &tt, nil
}

// GetPurchaseByID fetches a purchase with its ticket type, event and buyer.
func (d *DB) GetPurchaseByID(ctx context.Context, id string) (*models.Purchase, error) {
	var p models.Purchase
	err := d.Bun.NewSelect().
		Model(&p).
		Relation("TicketType").
		Relation("TicketType.Event").
		Relation("User").
		Where("p.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("purchase %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (d *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := d.Bun.NewSelect().
		Model(&u).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

// CreatePurchase inserts a pending purchase after re-checking availability
// under the ticket type row lock.
func (d *DB) CreatePurchase(ctx context.Context, p *models.Purchase, now time.Time) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tt, err := d.Inventory.TicketTypeForUpdate(ctx, tx, p.TicketTypeID)
		if err != nil {
			return err
		}
		if !tt.IsActive || !tt.InSaleWindow(now) || p.Quantity <= 0 || p.Quantity > tt.Remaining() {
			return fmt.Errorf("ticket type %s: %w", tt.ID, models.ErrInventoryExhausted)
		}
		_, err = tx.NewInsert().Model(p).Exec(ctx)
		return err
	})
}

// ConfirmPurchase applies the pending -> paid transition: the purchase row is
// updated, the payment and attendee rows inserted, and the sold counter
// reconciled, all under the ticket type row lock. If the recomputed sold
// count would exceed availability the whole transaction rolls back.
func (d *DB) ConfirmPurchase(ctx context.Context, p *models.Purchase, pay *models.Payment, attendees []*models.Attendee) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		tt, err := d.Inventory.TicketTypeForUpdate(ctx, tx, p.TicketTypeID)
		if err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model(p).
			Column("status", "paid_at", "payment_method", "payment_reference", "qr_code_data", "qr_code_png", "updated_at").
			Where("id = ?", p.ID).
			Exec(ctx)
		if err != nil {
			return err
		}

		if pay != nil {
			if _, err := tx.NewInsert().Model(pay).Exec(ctx); err != nil {
				return err
			}
		}
		if len(attendees) > 0 {
			if _, err := tx.NewInsert().Model(&attendees).Exec(ctx); err != nil {
				return err
			}
		}

		sold, err := d.Inventory.Reconcile(ctx, tx, p.TicketTypeID)
		if err != nil {
			return err
		}
		if sold > tt.QuantityAvailable {
			return fmt.Errorf("ticket type %s oversold (%d > %d): %w",
				tt.ID, sold, tt.QuantityAvailable, models.ErrInventoryExhausted)
		}
		return nil
	})
}

// FailPurchase applies pending -> cancelled after a failed capture. A pending
// purchase was never counted as sold, so no reconcile is needed.
func (d *DB) FailPurchase(ctx context.Context, p *models.Purchase, pay *models.Payment) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(p).
			Column("status", "updated_at").
			Where("id = ?", p.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if pay != nil {
			if _, err := tx.NewInsert().Model(pay).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// CancelPurchase applies the cancelled transition. When the purchase was
// paid its quantity must stop counting as sold, so the ticket type row is
// locked and reconciled in the same transaction.
func (d *DB) CancelPurchase(ctx context.Context, p *models.Purchase, wasPaid bool) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if wasPaid {
			if _, err := d.Inventory.TicketTypeForUpdate(ctx, tx, p.TicketTypeID); err != nil {
				return err
			}
		}
		_, err := tx.NewUpdate().
			Model(p).
			Column("status", "updated_at").
			Where("id = ?", p.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		if wasPaid {
			if _, err := d.Inventory.Reconcile(ctx, tx, p.TicketTypeID); err != nil {
				return err
			}
		}
		return nil
	})
}

// MarkRefundedPurchase applies paid -> refunded, reconciling identically to
// cancellation.
func (d *DB) MarkRefundedPurchase(ctx context.Context, p *models.Purchase) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := d.Inventory.TicketTypeForUpdate(ctx, tx, p.TicketTypeID); err != nil {
			return err
		}
		_, err := tx.NewUpdate().
			Model(p).
			Column("status", "updated_at").
			Where("id = ?", p.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		_, err = d.Inventory.Reconcile(ctx, tx, p.TicketTypeID)
		return err
	})
}

// HasValidation reports whether at least one successful entry scan exists for
// the purchase.
func (d *DB) HasValidation(ctx context.Context, purchaseID string) (bool, error) {
	return d.Bun.NewSelect().
		Model((*models.TicketValidation)(nil)).
		Where("purchase_id = ?", purchaseID).
		Exists(ctx)
}

// GetPurchasesByUser lists a buyer's purchases, newest first.
func (d *DB) GetPurchasesByUser(ctx context.Context, userID string) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := d.Bun.NewSelect().
		Model(&purchases).
		Relation("TicketType").
		Where("p.user_id = ?", userID).
		Order("p.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return purchases, nil
}
