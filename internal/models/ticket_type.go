package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// TicketType is one purchasable class of admission for an event (e.g. "VIP").
// QuantitySold is a cached aggregate: it is always recomputable as the sum of
// quantities of paid purchases referencing this ticket type, and is only ever
// rewritten by inventory.Reconcile inside the same transaction as the purchase
// status change that invalidated it.
type TicketType struct {
	bun.BaseModel `bun:"table:ticket_types,alias:tt"`

	ID                string          `bun:"id,pk" json:"id"`
	EventID           string          `bun:"event_id,notnull" json:"event_id"`
	Name              string          `bun:"name,notnull" json:"name"`
	Description       string          `bun:"description,nullzero" json:"description,omitempty"`
	Price             decimal.Decimal `bun:"price,notnull" json:"price"`
	QuantityAvailable int             `bun:"quantity_available,notnull" json:"quantity_available"`
	QuantitySold      int             `bun:"quantity_sold,notnull,default:0" json:"quantity_sold"`
	IsActive          bool            `bun:"is_active,notnull,default:true" json:"is_active"`
	SaleStartDatetime *time.Time      `bun:"sale_start_datetime,nullzero" json:"sale_start_datetime,omitempty"`
	SaleEndDatetime   *time.Time      `bun:"sale_end_datetime,nullzero" json:"sale_end_datetime,omitempty"`
	CreatedAt         time.Time       `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time       `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`

	Event *Event `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
}

// Remaining returns the sellable quantity, never negative.
func (t *TicketType) Remaining() int {
	if r := t.QuantityAvailable - t.QuantitySold; r > 0 {
		return r
	}
	return 0
}

func (t *TicketType) IsSoldOut() bool {
	return t.Remaining() == 0
}

// InSaleWindow reports whether now falls inside [sale_start, sale_end).
// An unset bound is treated as always open on that side.
func (t *TicketType) InSaleWindow(now time.Time) bool {
	if t.SaleStartDatetime != nil && now.Before(*t.SaleStartDatetime) {
		return false
	}
	if t.SaleEndDatetime != nil && !now.Before(*t.SaleEndDatetime) {
		return false
	}
	return true
}
