package payments

import (
	"context"
	"time"
)

// Store is the durable ledger behind the lifecycle controller.
//
// Stores enforce the invariants the controller relies on: merchant
// references are unique (CreatePayment fails with
// ErrDuplicateReference), status updates are compare-and-set
// (UpdateStatus fails with ErrInvalidState when the row is no longer in
// the expected status), and transactions are append-only. A successful
// REFUND append that would push the refunded total past the payment
// amount fails with ErrRefundExceedsTotal, atomically with the append.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPayment(ctx context.Context, id string) (*Payment, error)
	GetByMerchantReference(ctx context.Context, ref string) (*Payment, error)

	// UpdateStatus atomically moves a payment from expected to next and
	// refreshes its updated timestamp.
	UpdateStatus(ctx context.Context, id string, expected, next Status, at time.Time) error

	// ListByUser returns a user's payments, newest first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Payment, error)
	ListByUserBetween(ctx context.Context, userID string, start, end time.Time) ([]*Payment, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Payment, error)

	// ListByAmountRange returns payments with min <= amount <= max
	// (decimal strings), newest first.
	ListByAmountRange(ctx context.Context, min, max string, limit, offset int) ([]*Payment, error)

	// ListHighRisk returns payments with fraud score >= minScore, newest first.
	ListHighRisk(ctx context.Context, minScore float64, limit, offset int) ([]*Payment, error)

	// SumByUserAndStatus returns the decimal total of a user's payments
	// in the given status.
	SumByUserAndStatus(ctx context.Context, userID string, status Status) (string, error)

	// SumCompletedBetween returns the decimal total of COMPLETED
	// payments created in [start, end).
	SumCompletedBetween(ctx context.Context, start, end time.Time) (string, error)

	AppendTransaction(ctx context.Context, t *Transaction) error
	ListTransactions(ctx context.Context, paymentID string) ([]*Transaction, error)

	// SumRefunds returns the decimal total of successful REFUND
	// transactions for a payment.
	SumRefunds(ctx context.Context, paymentID string) (string, error)
}
