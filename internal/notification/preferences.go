package notification

// preferenceDefaults is the opt-in matrix applied when a user has not set an
// explicit preference. Transactional kinds default on for email; noisy kinds
// stay off on sms and push.
var preferenceDefaults = map[Channel]map[EventKind]bool{
	ChannelEmail: {
		KindPurchaseConfirmed: true,
		KindPurchaseCancelled: true,
		KindPaymentFailed:     true,
		KindRefundRequested:   true,
		KindRefundApproved:    true,
		KindRefundRejected:    true,
		KindRefundCompleted:   true,
		KindRefundFailed:      true,
		KindTicketValidated:   false,
	},
	ChannelSMS: {
		KindPurchaseConfirmed: true,
		KindPaymentFailed:     true,
		KindRefundCompleted:   true,
	},
	ChannelPush: {
		KindPurchaseConfirmed: true,
		KindTicketValidated:   true,
	},
}

// DefaultEnabled reports whether a kind is delivered on a channel absent an
// explicit user preference.
func DefaultEnabled(ch Channel, kind EventKind) bool {
	kinds, ok := preferenceDefaults[ch]
	if !ok {
		return false
	}
	return kinds[kind]
}
