package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type PurchaseStatus string

const (
	PurchasePending   PurchaseStatus = "pending"
	PurchasePaid      PurchaseStatus = "paid"
	PurchaseCancelled PurchaseStatus = "cancelled"
	PurchaseRefunded  PurchaseStatus = "refunded"
)

// Purchase is one buyer's transaction for a quantity of one TicketType.
// UnitPrice is captured at creation and never changes afterwards; TotalAmount
// is always unit price times quantity, never supplied by callers.
type Purchase struct {
	bun.BaseModel `bun:"table:purchases,alias:p"`

	ID           string          `bun:"id,pk" json:"id"`
	TicketTypeID string          `bun:"ticket_type_id,notnull" json:"ticket_type_id"`
	UserID       string          `bun:"user_id,notnull" json:"user_id"`
	Quantity     int             `bun:"quantity,notnull" json:"quantity"`
	UnitPrice    decimal.Decimal `bun:"unit_price,notnull" json:"unit_price"`
	TotalAmount  decimal.Decimal `bun:"total_amount,notnull" json:"total_amount"`
	Status       PurchaseStatus  `bun:"status,notnull,default:'pending'" json:"status"`

	// QR credential; present iff status is paid.
	QRCodeData string `bun:"qr_code_data,nullzero" json:"qr_code_data,omitempty"`
	QRCodePNG  []byte `bun:"qr_code_png,nullzero" json:"-"`

	Reference        string `bun:"purchase_reference,unique,notnull" json:"purchase_reference"`
	PaymentMethod    string `bun:"payment_method,nullzero" json:"payment_method,omitempty"`
	PaymentReference string `bun:"payment_reference,nullzero" json:"payment_reference,omitempty"`

	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt time.Time  `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
	PaidAt    *time.Time `bun:"paid_at,nullzero" json:"paid_at,omitempty"`

	TicketType *TicketType `bun:"rel:belongs-to,join:ticket_type_id=id" json:"ticket_type,omitempty"`
	User       *User       `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
}

// HasCredential reports whether a QR credential has been issued.
func (p *Purchase) HasCredential() bool {
	return p.QRCodeData != ""
}
