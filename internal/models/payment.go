package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentSuccess    PaymentStatus = "success"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

const (
	MethodMobileMoney = "mobile_money"
	MethodCard        = "card"
)

// Payment records one capture attempt against the gateway for a purchase.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:pay"`

	ID                string          `bun:"id,pk" json:"id"`
	Reference         string          `bun:"payment_reference,unique,notnull" json:"payment_reference"`
	ExternalReference string          `bun:"external_reference,nullzero" json:"external_reference,omitempty"`
	Amount            decimal.Decimal `bun:"amount,notnull" json:"amount"`
	Currency          string          `bun:"currency,notnull,default:'XOF'" json:"currency"`
	Method            string          `bun:"method,notnull" json:"method"`
	Status            PaymentStatus   `bun:"status,notnull,default:'pending'" json:"status"`

	UserID     string `bun:"user_id,notnull" json:"user_id"`
	PurchaseID string `bun:"purchase_id,nullzero" json:"purchase_id,omitempty"`

	ProviderResponse string `bun:"provider_response,nullzero" json:"provider_response,omitempty"`
	FailureReason    string `bun:"failure_reason,nullzero" json:"failure_reason,omitempty"`

	CreatedAt   time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	ProcessedAt *time.Time `bun:"processed_at,nullzero" json:"processed_at,omitempty"`

	Purchase *Purchase `bun:"rel:belongs-to,join:purchase_id=id" json:"purchase,omitempty"`
}

func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentSuccess
}

// CanBeRefunded reports whether a refund may be requested against this payment.
func (p *Payment) CanBeRefunded() bool {
	return p.Status == PaymentSuccess
}
