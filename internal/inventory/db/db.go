package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"eventgo/internal/models"
)

// DB holds the inventory queries. Methods take a bun.IDB so callers can run
// them inside their own transaction; the ticket type row is the single point
// of write contention, so everything that touches quantity_sold goes through
// here.
type DB struct {
	// LockRows enables SELECT ... FOR UPDATE. On in spots backed by
	// postgres; off for the sqlite test harness, which serializes writes
	// itself.
	LockRows bool
}

func New(lockRows bool) *DB {
	return &DB{LockRows: lockRows}
}

// TicketTypeForUpdate fetches a ticket type row, locking it for the duration
// of the surrounding transaction when row locking is enabled. The event
// relation is fetched with a second query since FOR UPDATE does not allow the
// join.
func (d *DB) TicketTypeForUpdate(ctx context.Context, idb bun.IDB, id string) (*models.TicketType, error) {
	var tt models.TicketType
	q := idb.NewSelect().
		Model(&tt).
		Where("id = ?", id).
		Limit(1)
	if d.LockRows {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket type %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}

	var event models.Event
	err := idb.NewSelect().
		Model(&event).
		Where("id = ?", tt.EventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", tt.EventID, models.ErrNotFound)
		}
		return nil, err
	}
	tt.Event = &event

	return &tt, nil
}

// SumPaidQuantity computes the authoritative sold count: the sum of
// quantities over paid purchases of this ticket type.
func (d *DB) SumPaidQuantity(ctx context.Context, idb bun.IDB, ticketTypeID string) (int, error) {
	var sold int
	err := idb.NewSelect().
		Model((*models.Purchase)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("ticket_type_id = ?", ticketTypeID).
		Where("status = ?", models.PurchasePaid).
		Scan(ctx, &sold)
	if err != nil {
		return 0, err
	}
	return sold, nil
}

// UpdateQuantitySold persists a freshly recomputed sold count.
func (d *DB) UpdateQuantitySold(ctx context.Context, idb bun.IDB, ticketTypeID string, sold int) error {
	_, err := idb.NewUpdate().
		Model((*models.TicketType)(nil)).
		Set("quantity_sold = ?", sold).
		Where("id = ?", ticketTypeID).
		Exec(ctx)
	return err
}

// InsertTicketType creates a ticket type row.
func (d *DB) InsertTicketType(ctx context.Context, idb bun.IDB, tt *models.TicketType) error {
	_, err := idb.NewInsert().Model(tt).Exec(ctx)
	return err
}

// UpdateTicketTypeRow persists the editable fields of a ticket type.
func (d *DB) UpdateTicketTypeRow(ctx context.Context, idb bun.IDB, tt *models.TicketType) error {
	_, err := idb.NewUpdate().
		Model(tt).
		Column("name", "description", "price", "quantity_available", "is_active",
			"sale_start_datetime", "sale_end_datetime", "updated_at").
		Where("id = ?", tt.ID).
		Exec(ctx)
	return err
}

// CountBlockingPurchases counts purchases that keep a ticket type from being
// deleted: anything not cancelled still references it.
func (d *DB) CountBlockingPurchases(ctx context.Context, idb bun.IDB, ticketTypeID string) (int, error) {
	return idb.NewSelect().
		Model((*models.Purchase)(nil)).
		Where("ticket_type_id = ?", ticketTypeID).
		Where("status != ?", models.PurchaseCancelled).
		Count(ctx)
}

// DeleteTicketTypeRow removes a ticket type.
func (d *DB) DeleteTicketTypeRow(ctx context.Context, idb bun.IDB, ticketTypeID string) error {
	_, err := idb.NewDelete().
		Model((*models.TicketType)(nil)).
		Where("id = ?", ticketTypeID).
		Exec(ctx)
	return err
}

// ListTicketTypes returns the ticket types of an event.
func (d *DB) ListTicketTypes(ctx context.Context, idb bun.IDB, eventID string) ([]models.TicketType, error) {
	var types []models.TicketType
	err := idb.NewSelect().
		Model(&types).
		Where("event_id = ?", eventID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return types, nil
}

// Reconcile recomputes quantity_sold from paid purchases and persists it,
// returning the new count. Run it inside the same transaction as the purchase
// status change it follows.
func (d *DB) Reconcile(ctx context.Context, idb bun.IDB, ticketTypeID string) (int, error) {
	sold, err := d.SumPaidQuantity(ctx, idb, ticketTypeID)
	if err != nil {
		return 0, fmt.Errorf("failed to sum paid purchases for ticket type %s: %w", ticketTypeID, err)
	}
	if err := d.UpdateQuantitySold(ctx, idb, ticketTypeID, sold); err != nil {
		return 0, fmt.Errorf("failed to update quantity_sold for ticket type %s: %w", ticketTypeID, err)
	}
	return sold, nil
}
