package models

import "errors"

// Domain failure kinds. Services wrap these with %w so callers can pick the
// right response with errors.Is; the api layer maps each to an HTTP status.
var (
	ErrInventoryExhausted   = errors.New("ticket type not available for the requested quantity")
	ErrEventClosed          = errors.New("event has already ended")
	ErrNotCancellable       = errors.New("purchase can no longer be cancelled")
	ErrNotPaid              = errors.New("purchase is not paid")
	ErrMalformedCredential  = errors.New("credential payload is malformed")
	ErrEventNotYetOpen      = errors.New("event has not started yet")
	ErrEventEnded           = errors.New("event has ended")
	ErrNotRefundable        = errors.New("payment cannot be refunded")
	ErrAmountExceedsPayment = errors.New("refund amount exceeds payment amount")
	ErrDuplicateRequest     = errors.New("an outstanding refund request already exists for this payment")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrAttendeeMismatch     = errors.New("attendee count does not match purchase quantity")
	ErrNotFound             = errors.New("record not found")
)
