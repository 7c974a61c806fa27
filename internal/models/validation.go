package models

import (
	"time"

	"github.com/uptrace/bun"
)

// TicketValidation is an append-only record of one entry scan. Rows are never
// updated or deleted.
type TicketValidation struct {
	bun.BaseModel `bun:"table:ticket_validations,alias:v"`

	ID                 string    `bun:"id,pk" json:"id"`
	PurchaseID         string    `bun:"purchase_id,notnull" json:"purchase_id"`
	ValidatedBy        string    `bun:"validated_by,notnull" json:"validated_by"`
	ValidationDatetime time.Time `bun:"validation_datetime,notnull" json:"validation_datetime"`
	Location           string    `bun:"location,nullzero" json:"location,omitempty"`
	Notes              string    `bun:"notes,nullzero" json:"notes,omitempty"`

	Purchase *Purchase `bun:"rel:belongs-to,join:purchase_id=id" json:"purchase,omitempty"`
}
