package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type RefundRequestStatus string

const (
	RefundRequestPending    RefundRequestStatus = "pending"
	RefundRequestApproved   RefundRequestStatus = "approved"
	RefundRequestRejected   RefundRequestStatus = "rejected"
	RefundRequestProcessing RefundRequestStatus = "processing"
	RefundRequestCompleted  RefundRequestStatus = "completed"
	RefundRequestFailed     RefundRequestStatus = "failed"
)

// RefundRequest is a payer-initiated ask to reverse a payment. At most one
// outstanding request (pending/approved/processing) may exist per payment; a
// failed request is not outstanding, so the payer may request again after a
// failed gateway execution.
type RefundRequest struct {
	bun.BaseModel `bun:"table:refund_requests,alias:rr"`

	ID          string              `bun:"id,pk" json:"id"`
	PaymentID   string              `bun:"payment_id,notnull" json:"payment_id"`
	RequestedBy string              `bun:"requested_by,notnull" json:"requested_by"`
	Amount      decimal.Decimal     `bun:"amount,notnull" json:"amount"`
	Reason      string              `bun:"reason,notnull" json:"reason"`
	Status      RefundRequestStatus `bun:"status,notnull,default:'pending'" json:"status"`

	ReviewedBy string `bun:"reviewed_by,nullzero" json:"reviewed_by,omitempty"`
	AdminNotes string `bun:"admin_notes,nullzero" json:"admin_notes,omitempty"`

	RefundReference string          `bun:"refund_reference,nullzero" json:"refund_reference,omitempty"`
	ProcessedAmount decimal.Decimal `bun:"processed_amount,nullzero" json:"processed_amount,omitempty"`

	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	ProcessedAt *time.Time `bun:"processed_at,nullzero" json:"processed_at,omitempty"`

	Payment *Payment `bun:"rel:belongs-to,join:payment_id=id" json:"payment,omitempty"`
}

// Outstanding reports whether this request still blocks new requests for the
// same payment.
func (r *RefundRequest) Outstanding() bool {
	switch r.Status {
	case RefundRequestPending, RefundRequestApproved, RefundRequestProcessing:
		return true
	}
	return false
}

type RefundStatus string

const (
	RefundPending    RefundStatus = "pending"
	RefundProcessing RefundStatus = "processing"
	RefundCompleted  RefundStatus = "completed"
	RefundFailed     RefundStatus = "failed"
)

// Refund is the immutable record of one executed refund attempt against the
// gateway. An approved request yields exactly one Refund per execution.
type Refund struct {
	bun.BaseModel `bun:"table:refunds,alias:rf"`

	ID              string          `bun:"id,pk" json:"id"`
	PaymentID       string          `bun:"payment_id,notnull" json:"payment_id"`
	RefundRequestID string          `bun:"refund_request_id,notnull" json:"refund_request_id"`
	Amount          decimal.Decimal `bun:"amount,notnull" json:"amount"`
	Reference       string          `bun:"refund_reference,unique,notnull" json:"refund_reference"`
	Method          string          `bun:"refund_method,notnull" json:"refund_method"`
	Status          RefundStatus    `bun:"status,notnull,default:'pending'" json:"status"`

	ProviderResponse string `bun:"provider_response,nullzero" json:"provider_response,omitempty"`
	FailureReason    string `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`

	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	ProcessedAt *time.Time `bun:"processed_at,nullzero" json:"processed_at,omitempty"`
}

func (r *Refund) IsSuccessful() bool {
	return r.Status == RefundCompleted
}
