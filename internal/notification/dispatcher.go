package notification

import "context"

// EventKind identifies what happened; it drives both the message template and
// the per-user preference lookup.
type EventKind string

const (
	KindPurchaseConfirmed EventKind = "purchase_confirmed"
	KindPurchaseCancelled EventKind = "purchase_cancelled"
	KindPaymentFailed     EventKind = "payment_failed"
	KindRefundRequested   EventKind = "refund_requested"
	KindRefundApproved    EventKind = "refund_approved"
	KindRefundRejected    EventKind = "refund_rejected"
	KindRefundCompleted   EventKind = "refund_completed"
	KindRefundFailed      EventKind = "refund_failed"
	KindTicketValidated   EventKind = "ticket_validated"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Message is one outbound notification.
type Message struct {
	Recipient string                 `json:"recipient"`
	Kind      EventKind              `json:"kind"`
	Channel   Channel                `json:"channel"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// Dispatcher delivers messages to the notification pipeline. Delivery is best
// effort: callers must never fail a business operation because a notification
// could not be sent.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// Noop discards everything. Used in tests and when Kafka is disabled.
type Noop struct{}

func (Noop) Dispatch(ctx context.Context, msg Message) error { return nil }

// PreferenceFilter drops messages whose (channel, kind) combination is off in
// the default preference matrix before they reach the underlying dispatcher.
type PreferenceFilter struct {
	Next Dispatcher
}

func NewPreferenceFilter(next Dispatcher) PreferenceFilter {
	return PreferenceFilter{Next: next}
}

func (f PreferenceFilter) Dispatch(ctx context.Context, msg Message) error {
	if !DefaultEnabled(msg.Channel, msg.Kind) {
		return nil
	}
	return f.Next.Dispatch(ctx, msg)
}
