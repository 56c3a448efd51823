// Package payments implements the payment lifecycle and transaction ledger.
//
// A payment moves through a strict state machine: it is created in
// PROCESSING once fraud scoring passes, settles through an external
// gateway, and ends COMPLETED, FAILED, CANCELLED, or (after refunds)
// PARTIALLY_REFUNDED/REFUNDED. Every settlement attempt appends an
// immutable Transaction; the ledger is append-only and never rewritten.
package payments

import (
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/paygate/internal/fraud"
)

// Errors
var (
	ErrPaymentNotFound    = errors.New("payments: not found")
	ErrUserNotFound       = errors.New("payments: user not found")
	ErrUserInactive       = errors.New("payments: user is not active")
	ErrDuplicateReference = errors.New("payments: merchant reference already used")
	ErrInvalidState       = errors.New("payments: transition not permitted from current status")
	ErrRefundExceedsTotal = errors.New("payments: refund amount exceeds refundable balance")
	ErrFraudBlocked       = errors.New("payments: blocked by fraud engine")
	ErrProcessingFailure  = errors.New("payments: processing failed")
)

// FraudBlockedError carries the score and tier of a blocked payment.
// It matches ErrFraudBlocked under errors.Is.
type FraudBlockedError struct {
	Score float64
	Tier  fraud.Tier
}

func (e *FraudBlockedError) Error() string {
	return fmt.Sprintf("payments: blocked by fraud engine (score %.2f, tier %s)", e.Score, e.Tier)
}

func (e *FraudBlockedError) Is(target error) bool {
	return target == ErrFraudBlocked
}

// Status is a payment's lifecycle state.
type Status string

const (
	StatusPending           Status = "PENDING"
	StatusProcessing        Status = "PROCESSING"
	StatusCompleted         Status = "COMPLETED"
	StatusFailed            Status = "FAILED"
	StatusCancelled         Status = "CANCELLED"
	StatusRefunded          Status = "REFUNDED"
	StatusPartiallyRefunded Status = "PARTIALLY_REFUNDED"
)

// transitions is the full lifecycle state machine. Anything not listed
// here is rejected with ErrInvalidState.
var transitions = map[Status][]Status{
	StatusPending:           {StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled},
	StatusProcessing:        {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted:         {StatusRefunded, StatusPartiallyRefunded},
	StatusPartiallyRefunded: {StatusRefunded, StatusPartiallyRefunded},
	// FAILED, CANCELLED and REFUNDED are terminal.
}

// CanTransitionTo reports whether the state machine permits s → next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed,
		StatusCancelled, StatusRefunded, StatusPartiallyRefunded:
		return true
	}
	return false
}

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxnPayment    TransactionType = "PAYMENT"
	TxnRefund     TransactionType = "REFUND"
	TxnAdjustment TransactionType = "ADJUSTMENT"
)

// TransactionStatus is the outcome of a settlement attempt.
type TransactionStatus string

const (
	TxnPending TransactionStatus = "PENDING"
	TxnSuccess TransactionStatus = "SUCCESS"
	TxnFailed  TransactionStatus = "FAILED"
)

// Payment is the mutable projection of a payment's lifecycle. Amount
// and FraudScore are set at creation and never change; only Status and
// UpdatedAt move afterwards.
type Payment struct {
	ID                string    `json:"id"`
	UserID            string    `json:"userId"`
	Amount            string    `json:"amount"` // decimal string
	Currency          string    `json:"currency"`
	Status            Status    `json:"status"`
	Method            string    `json:"method"`
	MerchantReference string    `json:"merchantReference,omitempty"`
	Description       string    `json:"description,omitempty"`
	FraudScore        float64   `json:"fraudScore"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Transaction is one immutable ledger entry: a settlement attempt for a
// payment, refund, or adjustment.
type Transaction struct {
	ID          string            `json:"id"`
	PaymentID   string            `json:"paymentId"`
	Type        TransactionType   `json:"type"`
	Amount      string            `json:"amount"` // decimal string; "0.00" only for ADJUSTMENT
	Status      TransactionStatus `json:"status"`
	Reference   string            `json:"reference,omitempty"` // settlement reference
	Note        string            `json:"note,omitempty"`
	ProcessedAt *time.Time        `json:"processedAt,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}
