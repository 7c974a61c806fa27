package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"eventgo/internal/logger"
)

var ErrStripeClientInitFailed = errors.New("failed to initialize Stripe client")

// StripeGateway captures and refunds through Stripe payment intents. A
// declined charge is a normal Result with Success=false; only transport and
// API failures surface as errors.
type StripeGateway struct {
	client *client.API
	log    *logger.Logger
}

func NewStripeGateway(secretKey string, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, ErrStripeClientInitFailed
	}

	sc := client.New(secretKey, nil)
	if sc == nil {
		return nil, ErrStripeClientInitFailed
	}

	if log != nil {
		log.Info("STRIPE", "Stripe client initialized successfully")
	}
	return &StripeGateway{client: sc, log: log}, nil
}

func (g *StripeGateway) Capture(ctx context.Context, req CaptureRequest) (*Result, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(toSmallestUnit(req)),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	params.AddMetadata("reference", req.Reference)
	params.AddMetadata("purchase_id", req.PurchaseID)

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			if g.log != nil {
				g.log.LogGateway("CAPTURE", req.Reference, fmt.Sprintf("Card declined: %s", stripeErr.Code))
			}
			return &Result{Success: false, FailureReason: string(stripeErr.Code)}, nil
		}
		return nil, fmt.Errorf("stripe capture failed: %w", err)
	}

	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		if g.log != nil {
			g.log.LogGateway("CAPTURE", req.Reference, fmt.Sprintf("Payment intent %s: %s", pi.ID, pi.Status))
		}
		return &Result{Success: true, Reference: pi.ID}, nil
	default:
		return &Result{
			Success:       false,
			Reference:     pi.ID,
			FailureReason: fmt.Sprintf("payment intent status %s", pi.Status),
		}, nil
	}
}

func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (*Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.ExternalReference),
		Amount:        stripe.Int64(toSmallestUnitRefund(req)),
	}
	params.Context = ctx
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}

	re, err := g.client.Refunds.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			if g.log != nil {
				g.log.LogGateway("REFUND", req.ExternalReference, fmt.Sprintf("Refund rejected: %s", stripeErr.Code))
			}
			return &Result{Success: false, FailureReason: string(stripeErr.Code)}, nil
		}
		return nil, fmt.Errorf("stripe refund failed: %w", err)
	}

	if re.Status == stripe.RefundStatusFailed || re.Status == stripe.RefundStatusCanceled {
		return &Result{
			Success:       false,
			Reference:     re.ID,
			FailureReason: string(re.FailureReason),
		}, nil
	}

	if g.log != nil {
		g.log.LogGateway("REFUND", req.ExternalReference, fmt.Sprintf("Refund %s: %s", re.ID, re.Status))
	}
	return &Result{Success: true, Reference: re.ID}, nil
}

// Stripe amounts are in the smallest currency unit.
func toSmallestUnit(req CaptureRequest) int64 {
	return req.Amount.Mul(centsFactor).IntPart()
}

func toSmallestUnitRefund(req RefundRequest) int64 {
	return req.Amount.Mul(centsFactor).IntPart()
}
