package gateway

import (
	"context"
	"fmt"
	"strings"

	stripe "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"

	"github.com/mbd888/paygate/internal/money"
)

// Stripe settles charges through Stripe PaymentIntents. Amounts are
// converted to the smallest currency unit; references are Stripe's
// PaymentIntent and Refund IDs.
type Stripe struct {
	api *client.API

	// PaymentMethod is attached to every intent. Server-initiated
	// settlement has no browser to collect a method, so deployments
	// configure a saved method or a test token here.
	PaymentMethod string
}

// NewStripe creates a Stripe-backed gateway using the given secret key.
func NewStripe(secretKey string) *Stripe {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Stripe{api: api, PaymentMethod: "pm_card_visa"}
}

func (s *Stripe) Settle(ctx context.Context, req SettleRequest) (string, error) {
	cents, ok := money.Parse(req.Amount)
	if !ok {
		return "", fmt.Errorf("%w: invalid amount %q", ErrSettlementFailed, req.Amount)
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(cents.Int64()),
		Currency:      stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod: stripe.String(s.PaymentMethod),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	// Payment IDs are unique per attempt, so retried settles of the same
	// payment collapse into one charge on Stripe's side.
	params.SetIdempotencyKey("settle-" + req.PaymentID)
	params.AddMetadata("payment_id", req.PaymentID)
	params.AddMetadata("user_id", req.UserID)
	params.AddMetadata("method", req.Method)

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSettlementFailed, err)
	}
	if intent.Status != stripe.PaymentIntentStatusSucceeded {
		return "", fmt.Errorf("%w: intent %s in status %s", ErrSettlementFailed, intent.ID, intent.Status)
	}
	return intent.ID, nil
}

func (s *Stripe) SettleRefund(ctx context.Context, req RefundRequest) (string, error) {
	cents, ok := money.Parse(req.Amount)
	if !ok {
		return "", fmt.Errorf("%w: invalid amount %q", ErrRefundFailed, req.Amount)
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.Reference),
		Amount:        stripe.Int64(cents.Int64()),
	}
	params.Context = ctx
	params.AddMetadata("payment_id", req.PaymentID)

	refund, err := s.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	return refund.ID, nil
}

var _ Gateway = (*Stripe)(nil)
