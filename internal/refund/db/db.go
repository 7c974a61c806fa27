package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"eventgo/internal/models"
)

type DB struct {
	Bun *bun.DB
}

func New(bunDB *bun.DB) *DB {
	return &DB{Bun: bunDB}
}

// GetPaymentByID fetches a payment with its purchase and buyer, so refund
// notifications can reach the buyer's address.
func (d *DB) GetPaymentByID(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	err := d.Bun.NewSelect().
		Model(&p).
		Relation("Purchase").
		Relation("Purchase.User").
		Where("pay.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("payment %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

// GetOutstandingRequest returns the pending/approved/processing request for a
// payment, or nil when there is none. The partial unique index on
// refund_requests backs this check up under concurrency.
func (d *DB) GetOutstandingRequest(ctx context.Context, paymentID string) (*models.RefundRequest, error) {
	var req models.RefundRequest
	err := d.Bun.NewSelect().
		Model(&req).
		Where("payment_id = ?", paymentID).
		Where("status IN (?)", bun.In([]models.RefundRequestStatus{
			models.RefundRequestPending,
			models.RefundRequestApproved,
			models.RefundRequestProcessing,
		})).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// SumCompletedRefunds returns the total already refunded against a payment.
func (d *DB) SumCompletedRefunds(ctx context.Context, paymentID string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := d.Bun.NewSelect().
		Model((*models.Refund)(nil)).
		ColumnExpr("COALESCE(SUM(amount), 0)").
		Where("payment_id = ?", paymentID).
		Where("status = ?", models.RefundCompleted).
		Scan(ctx, &total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// InsertRequest creates a refund request row.
func (d *DB) InsertRequest(ctx context.Context, req *models.RefundRequest) error {
	_, err := d.Bun.NewInsert().Model(req).Exec(ctx)
	return err
}

// GetRequestByID fetches a refund request with its payment, purchase, and
// buyer.
func (d *DB) GetRequestByID(ctx context.Context, id string) (*models.RefundRequest, error) {
	var req models.RefundRequest
	err := d.Bun.NewSelect().
		Model(&req).
		Relation("Payment").
		Relation("Payment.Purchase").
		Relation("Payment.Purchase.User").
		Where("rr.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("refund request %s: %w", id, models.ErrNotFound)
		}
		return nil, err
	}
	return &req, nil
}

// UpdateRequest persists a request's review and execution fields.
func (d *DB) UpdateRequest(ctx context.Context, req *models.RefundRequest) error {
	_, err := d.Bun.NewUpdate().
		Model(req).
		Column("status", "reviewed_by", "admin_notes", "refund_reference", "processed_amount", "processed_at", "updated_at").
		Where("id = ?", req.ID).
		Exec(ctx)
	return err
}

// InsertRefund appends one execution record.
func (d *DB) InsertRefund(ctx context.Context, r *models.Refund) error {
	_, err := d.Bun.NewInsert().Model(r).Exec(ctx)
	return err
}

// UpdatePaymentStatus flips a payment's status.
func (d *DB) UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", status).
		Where("id = ?", paymentID).
		Exec(ctx)
	return err
}

// ListRequests returns refund requests, optionally filtered by status,
// newest first.
func (d *DB) ListRequests(ctx context.Context, status models.RefundRequestStatus) ([]models.RefundRequest, error) {
	var requests []models.RefundRequest
	q := d.Bun.NewSelect().
		Model(&requests).
		Relation("Payment").
		Order("rr.created_at DESC")
	if status != "" {
		q = q.Where("rr.status = ?", status)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return requests, nil
}

// ListRequestsByUser returns the requests a payer has filed, newest first.
func (d *DB) ListRequestsByUser(ctx context.Context, userID string) ([]models.RefundRequest, error) {
	var requests []models.RefundRequest
	err := d.Bun.NewSelect().
		Model(&requests).
		Relation("Payment").
		Where("rr.requested_by = ?", userID).
		Order("rr.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return requests, nil
}
