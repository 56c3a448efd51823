// Package gateway abstracts the external settlement rail that actually
// moves money. The ledger never talks to a processor directly; it hands
// a settlement request to a Gateway and records the reference it gets
// back.
package gateway

import (
	"context"
	"errors"
)

// Errors
var (
	ErrSettlementFailed = errors.New("gateway: settlement failed")
	ErrRefundFailed     = errors.New("gateway: refund failed")
)

// SettleRequest describes a charge to settle.
type SettleRequest struct {
	PaymentID string
	UserID    string
	Amount    string // decimal string
	Currency  string
	Method    string
}

// RefundRequest describes a refund against a settled charge.
type RefundRequest struct {
	PaymentID string
	Reference string // settlement reference of the original charge
	Amount    string // decimal string
	Currency  string
}

// Gateway settles charges and refunds with an external processor.
// Implementations must respect ctx cancellation.
type Gateway interface {
	// Settle moves the money and returns the processor's reference.
	Settle(ctx context.Context, req SettleRequest) (string, error)

	// SettleRefund reverses part or all of a settled charge and returns
	// the processor's refund reference.
	SettleRefund(ctx context.Context, req RefundRequest) (string, error)
}
