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

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// GetPurchaseByID fetches a purchase with the relations the gate check needs.
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

// LastValidationSince returns the most recent scan of the purchase at or
// after the cutoff, or nil when there is none.
func (d *DB) LastValidationSince(ctx context.Context, purchaseID string, cutoff time.Time) (*models.TicketValidation, error) {
	var v models.TicketValidation
	err := d.Bun.NewSelect().
		Model(&v).
		Where("purchase_id = ?", purchaseID).
		Where("validation_datetime >= ?", cutoff).
		Order("validation_datetime DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}

// InsertValidation appends one scan record.
func (d *DB) InsertValidation(ctx context.Context, v *models.TicketValidation) error {
	_, err := d.Bun.NewInsert().Model(v).Exec(ctx)
	return err
}

// ListValidations returns all scans of a purchase, newest first.
func (d *DB) ListValidations(ctx context.Context, purchaseID string) ([]models.TicketValidation, error) {
	var validations []models.TicketValidation
	err := d.Bun.NewSelect().
		Model(&validations).
		Where("purchase_id = ?", purchaseID).
		Order("validation_datetime DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return validations, nil
}

// GetAttendee fetches one attendee row.
func (d *DB) GetAttendee(ctx context.Context, id string) (*models.Attendee, error) {
	var a models.Attendee
	err := d.Bun.NewSelect().
		Model(&a).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("attendee %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &a, nil
}

// CheckInAttendee flips checked_in to true once. The WHERE clause makes the
// update a no-op on an already checked-in row, so the first check-in time is
// never overwritten.
func (d *DB) CheckInAttendee(ctx context.Context, id string, at time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Attendee)(nil)).
		Set("checked_in = ?", true).
		Set("check_in_datetime = ?", at).
		Where("id = ?", id).
		Where("checked_in = ?", false).
		Exec(ctx)
	return err
}

// ListAttendees returns the attendees under a purchase.
func (d *DB) ListAttendees(ctx context.Context, purchaseID string) ([]models.Attendee, error) {
	var attendees []models.Attendee
	err := d.Bun.NewSelect().
		Model(&attendees).
		Where("purchase_id = ?", purchaseID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return attendees, nil
}
