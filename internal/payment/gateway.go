package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

var centsFactor = decimal.NewFromInt(100)

// CaptureRequest describes a charge to place against the gateway.
type CaptureRequest struct {
	Amount      decimal.Decimal
	Currency    string
	Method      string
	Reference   string
	PurchaseID  string
	Description string
}

// RefundRequest describes a refund to execute against a captured payment.
type RefundRequest struct {
	ExternalReference string
	Amount            decimal.Decimal
	Currency          string
	Reason            string
}

// Result is the gateway's verdict on a capture or refund attempt. A non-nil
// error means the gateway could not be reached; Success=false with a nil
// error means the gateway answered and declined.
type Result struct {
	Success       bool
	Reference     string
	FailureReason string
}

// Gateway abstracts the payment provider. The mock implementation backs
// development and tests; the Stripe implementation backs production.
type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) (*Result, error)
	Refund(ctx context.Context, req RefundRequest) (*Result, error)
}
