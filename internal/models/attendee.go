package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Attendee is one named participant under a purchase (group bookings carry
// several). CheckedIn flips to true at most once.
type Attendee struct {
	bun.BaseModel `bun:"table:attendees,alias:a"`

	ID         string `bun:"id,pk" json:"id"`
	PurchaseID string `bun:"purchase_id,notnull" json:"purchase_id"`
	FirstName  string `bun:"first_name,notnull" json:"first_name"`
	LastName   string `bun:"last_name,notnull" json:"last_name"`
	Email      string `bun:"email,nullzero" json:"email,omitempty"`
	Phone      string `bun:"phone,nullzero" json:"phone,omitempty"`

	CheckedIn       bool       `bun:"checked_in,notnull,default:false" json:"checked_in"`
	CheckInDatetime *time.Time `bun:"check_in_datetime,nullzero" json:"check_in_datetime,omitempty"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

func (a *Attendee) FullName() string {
	return a.FirstName + " " + a.LastName
}
