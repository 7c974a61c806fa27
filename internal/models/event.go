package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events,alias:e"`

	ID            string    `bun:"id,pk" json:"id"`
	Title         string    `bun:"title,notnull" json:"title"`
	Description   string    `bun:"description,nullzero" json:"description,omitempty"`
	OrganizerID   string    `bun:"organizer_id,notnull" json:"organizer_id"`
	Location      string    `bun:"location,nullzero" json:"location,omitempty"`
	StartDatetime time.Time `bun:"start_datetime,notnull" json:"start_datetime"`
	EndDatetime   time.Time `bun:"end_datetime,notnull" json:"end_datetime"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// HasStarted reports whether the event has begun at the given instant.
func (e *Event) HasStarted(now time.Time) bool {
	return !e.StartDatetime.After(now)
}

// HasEnded reports whether the event is over at the given instant.
func (e *Event) HasEnded(now time.Time) bool {
	return e.EndDatetime.Before(now)
}
