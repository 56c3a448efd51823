package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/paygate/internal/fraud"
	"github.com/mbd888/paygate/internal/gateway"
	"github.com/mbd888/paygate/internal/idgen"
	"github.com/mbd888/paygate/internal/metrics"
	"github.com/mbd888/paygate/internal/money"
	"github.com/mbd888/paygate/internal/notify"
	"github.com/mbd888/paygate/internal/traces"
	"github.com/mbd888/paygate/internal/users"
	"github.com/mbd888/paygate/internal/validation"
)

// Config holds the service's operational limits.
type Config struct {
	// SettlementTimeout bounds each gateway call. A timeout is a
	// processing failure, never an implicit success.
	SettlementTimeout time.Duration

	// MinPayment/MaxPayment bound accepted amounts (decimal strings).
	MinPayment string
	MaxPayment string

	// HighRiskAlertThreshold emits an advisory fraud alert for payments
	// that settle with a score at or above it. Zero disables the alerts.
	HighRiskAlertThreshold float64
}

// DefaultConfig returns production limits.
func DefaultConfig() Config {
	return Config{
		SettlementTimeout:      30 * time.Second,
		MinPayment:             "0.01",
		MaxPayment:             "1000000.00",
		HighRiskAlertThreshold: 0.5,
	}
}

// Service is the payment lifecycle controller. It orchestrates fraud
// scoring, settlement, and the ledger, and holds no cross-request
// locks: concurrency safety rests on the store's uniqueness and
// compare-and-set guarantees.
type Service struct {
	store   Store
	users   users.Store
	engine  *fraud.Engine
	gateway gateway.Gateway
	emitter *notify.Emitter
	logger  *slog.Logger
	cfg     Config

	now func() time.Time
}

// NewService creates the lifecycle controller.
func NewService(store Store, userStore users.Store, engine *fraud.Engine,
	gw gateway.Gateway, emitter *notify.Emitter, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		store:   store,
		users:   userStore,
		engine:  engine,
		gateway: gw,
		emitter: emitter,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// ProcessRequest is an incoming payment request.
type ProcessRequest struct {
	Amount            string `json:"amount"`
	Currency          string `json:"currency"`
	Method            string `json:"method"`
	MerchantReference string `json:"merchantReference,omitempty"`
	Description       string `json:"description,omitempty"`
}

// Receipt is the caller-facing outcome of a processed payment.
type Receipt struct {
	PaymentID  string    `json:"paymentId"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	Status     Status    `json:"status"`
	FraudScore float64   `json:"fraudScore"`
	Reference  string    `json:"reference"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ProcessPayment runs the full request → score → settle → ledger flow.
//
// Fraud-blocked requests never reach the ledger. After the payment row
// exists, a settlement failure moves it to FAILED with a FAILED
// transaction recording why, and surfaces ErrProcessingFailure.
func (s *Service) ProcessPayment(ctx context.Context, userID string, req ProcessRequest) (*Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "payments.Process")
	defer span.End()
	span.SetAttributes(traces.UserID(userID), traces.Amount(req.Amount))

	if err := s.validateRequest(userID, req); err != nil {
		return nil, err
	}

	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if err == users.ErrNotFound {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return nil, fmt.Errorf("resolving user: %w", err)
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: %s", ErrUserInactive, userID)
	}

	// Fast-path duplicate check. The store's uniqueness constraint is
	// what actually holds under concurrent requests.
	if req.MerchantReference != "" {
		if _, err := s.store.GetByMerchantReference(ctx, req.MerchantReference); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReference, req.MerchantReference)
		} else if err != ErrPaymentNotFound {
			return nil, fmt.Errorf("checking merchant reference: %w", err)
		}
	}

	assessment, err := s.scoreRequest(ctx, userID, req.Amount, req.Method)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(traces.FraudScore(assessment.Score))
	metrics.FraudScore.Observe(assessment.Score)

	if assessment.Blocked {
		metrics.FraudBlockedTotal.Inc()
		s.emitter.EmitFraudAlert(userID, "", assessment.Score, string(assessment.Tier))
		s.logger.Warn("payment blocked",
			"user", userID, "score", assessment.Score, "tier", assessment.Tier)
		return nil, &FraudBlockedError{Score: assessment.Score, Tier: assessment.Tier}
	}

	now := s.now()
	payment := &Payment{
		ID:                idgen.WithPrefix("pay_"),
		UserID:            userID,
		Amount:            req.Amount,
		Currency:          req.Currency,
		Status:            StatusProcessing,
		Method:            req.Method,
		MerchantReference: req.MerchantReference,
		Description:       req.Description,
		FraudScore:        assessment.Score,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		if err == ErrDuplicateReference {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReference, req.MerchantReference)
		}
		return nil, fmt.Errorf("%w: creating payment: %v", ErrProcessingFailure, err)
	}
	span.SetAttributes(traces.PaymentID(payment.ID))
	s.logger.Info("payment created",
		"payment", payment.ID, "user", userID, "amount", req.Amount, "score", assessment.Score)

	// Advisory only: the payment proceeds, but ops gets a heads-up.
	if t := s.cfg.HighRiskAlertThreshold; t > 0 && assessment.Score >= t {
		s.emitter.EmitFraudAlert(userID, payment.ID, assessment.Score, string(assessment.Tier))
	}

	reference, err := s.settle(ctx, gateway.SettleRequest{
		PaymentID: payment.ID,
		UserID:    userID,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Method:    req.Method,
	})
	if err != nil {
		s.failPayment(ctx, payment, TxnPayment, req.Amount, err)
		return nil, fmt.Errorf("%w: settlement: %v", ErrProcessingFailure, err)
	}

	processed := s.now()
	txn := &Transaction{
		ID:          idgen.WithPrefix("txn_"),
		PaymentID:   payment.ID,
		Type:        TxnPayment,
		Amount:      req.Amount,
		Status:      TxnSuccess,
		Reference:   reference,
		ProcessedAt: &processed,
		CreatedAt:   processed,
	}
	if err := s.store.AppendTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("%w: recording transaction: %v", ErrProcessingFailure, err)
	}

	if err := s.store.UpdateStatus(ctx, payment.ID, StatusProcessing, StatusCompleted, s.now()); err != nil {
		return nil, fmt.Errorf("%w: completing payment: %v", ErrProcessingFailure, err)
	}
	payment.Status = StatusCompleted

	metrics.PaymentsTotal.WithLabelValues(string(StatusCompleted)).Inc()
	s.emitter.EmitPaymentConfirmed(userID, payment.ID, payment.Amount, payment.Currency)
	s.logger.Info("payment completed", "payment", payment.ID, "reference", reference)

	return &Receipt{
		PaymentID:  payment.ID,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		Status:     StatusCompleted,
		FraudScore: payment.FraudScore,
		Reference:  reference,
		CreatedAt:  payment.CreatedAt,
	}, nil
}

// RefundPayment refunds part or all of a completed payment. Cumulative
// partial refunds are supported: the refundable balance is the payment
// amount minus all successful refunds so far.
func (s *Service) RefundPayment(ctx context.Context, paymentID, amount, reason string) (*Payment, error) {
	ctx, span := traces.StartSpan(ctx, "payments.Refund")
	defer span.End()
	span.SetAttributes(traces.PaymentID(paymentID), traces.Amount(amount))

	if errs := validation.Validate(
		validation.Required("payment_id", paymentID),
		validation.Required("amount", amount),
		validation.ValidAmount("amount", amount),
		validation.MaxLength("reason", reason, validation.MaxReasonLength),
	); len(errs) > 0 {
		return nil, errs
	}

	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	// Refundable states are exactly those the machine lets reach REFUNDED.
	if !payment.Status.CanTransitionTo(StatusRefunded) {
		return nil, fmt.Errorf("%w: cannot refund payment in status %s", ErrInvalidState, payment.Status)
	}

	refunded, err := s.store.SumRefunds(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("summing refunds: %w", err)
	}
	newTotal, ok := money.Add(refunded, amount)
	if !ok {
		return nil, validation.ValidationErrors{{Field: "amount", Message: "invalid amount format"}}
	}
	cmp, ok := money.Cmp(newTotal, payment.Amount)
	if !ok {
		return nil, fmt.Errorf("%w: unreadable ledger amounts for %s", ErrProcessingFailure, paymentID)
	}
	if cmp > 0 {
		return nil, fmt.Errorf("%w: %s refunded of %s, requested %s more",
			ErrRefundExceedsTotal, refunded, payment.Amount, amount)
	}

	settleRef, err := s.settlementReference(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	reference, err := s.settleRefund(ctx, gateway.RefundRequest{
		PaymentID: paymentID,
		Reference: settleRef,
		Amount:    amount,
		Currency:  payment.Currency,
	})
	if err != nil {
		s.failPayment(ctx, payment, TxnRefund, amount, err)
		return nil, fmt.Errorf("%w: refund settlement: %v", ErrProcessingFailure, err)
	}

	processed := s.now()
	txn := &Transaction{
		ID:          idgen.WithPrefix("txn_"),
		PaymentID:   paymentID,
		Type:        TxnRefund,
		Amount:      amount,
		Status:      TxnSuccess,
		Reference:   reference,
		Note:        reason,
		ProcessedAt: &processed,
		CreatedAt:   processed,
	}
	if err := s.store.AppendTransaction(ctx, txn); err != nil {
		if err == ErrRefundExceedsTotal {
			// Lost a concurrent-refund race after the processor call; the
			// settled refund needs reconciling against the processor.
			s.logger.Error("refund exceeded balance after settlement",
				"payment", paymentID, "amount", amount, "reference", reference)
			return nil, err
		}
		return nil, fmt.Errorf("%w: recording refund: %v", ErrProcessingFailure, err)
	}

	next := StatusPartiallyRefunded
	kind := "partial"
	if cmp == 0 {
		next = StatusRefunded
		kind = "full"
	}
	if err := s.store.UpdateStatus(ctx, paymentID, payment.Status, next, s.now()); err != nil {
		return nil, fmt.Errorf("%w: updating status: %v", ErrProcessingFailure, err)
	}
	payment.Status = next

	metrics.RefundsTotal.WithLabelValues(kind).Inc()
	s.emitter.EmitPaymentRefunded(payment.UserID, paymentID, amount, payment.Currency)
	s.logger.Info("payment refunded",
		"payment", paymentID, "amount", amount, "status", next, "reference", reference)

	return payment, nil
}

// CancelPayment cancels a payment that has not settled. No settlement
// call is made; a zero-amount ADJUSTMENT records the cancellation.
func (s *Service) CancelPayment(ctx context.Context, paymentID, reason string) (*Payment, error) {
	ctx, span := traces.StartSpan(ctx, "payments.Cancel")
	defer span.End()
	span.SetAttributes(traces.PaymentID(paymentID))

	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !payment.Status.CanTransitionTo(StatusCancelled) {
		return nil, fmt.Errorf("%w: cannot cancel payment in status %s", ErrInvalidState, payment.Status)
	}

	if err := s.store.UpdateStatus(ctx, paymentID, payment.Status, StatusCancelled, s.now()); err != nil {
		return nil, err
	}
	payment.Status = StatusCancelled

	now := s.now()
	txn := &Transaction{
		ID:          idgen.WithPrefix("txn_"),
		PaymentID:   paymentID,
		Type:        TxnAdjustment,
		Amount:      "0.00",
		Status:      TxnSuccess,
		Note:        reason,
		ProcessedAt: &now,
		CreatedAt:   now,
	}
	if err := s.store.AppendTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("%w: recording cancellation: %v", ErrProcessingFailure, err)
	}

	metrics.CancellationsTotal.Inc()
	s.emitter.EmitPaymentCancelled(payment.UserID, paymentID, reason)
	s.logger.Info("payment cancelled", "payment", paymentID, "reason", reason)

	return payment, nil
}

// RiskReport scores a hypothetical request without touching the ledger.
func (s *Service) RiskReport(ctx context.Context, userID, amount, method string) (fraud.Assessment, error) {
	if errs := validation.Validate(
		validation.Required("user_id", userID),
		validation.Required("amount", amount),
		validation.ValidAmount("amount", amount),
	); len(errs) > 0 {
		return fraud.Assessment{}, errs
	}
	if _, err := s.users.Get(ctx, userID); err != nil {
		if err == users.ErrNotFound {
			return fraud.Assessment{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return fraud.Assessment{}, err
	}
	return s.scoreRequest(ctx, userID, amount, method)
}

// --- Queries ---

// GetPayment returns one payment by id.
func (s *Service) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return s.store.GetPayment(ctx, id)
}

// ListByUser returns a user's payments, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Payment, error) {
	return s.store.ListByUser(ctx, userID, limit, offset)
}

// ListByStatus returns payments in a status, newest first.
func (s *Service) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Payment, error) {
	if !status.Valid() {
		return nil, validation.ValidationErrors{{Field: "status", Message: "unknown status"}}
	}
	return s.store.ListByStatus(ctx, status, limit, offset)
}

// ListByAmountRange returns payments within [min, max].
func (s *Service) ListByAmountRange(ctx context.Context, min, max string, limit, offset int) ([]*Payment, error) {
	if errs := validation.Validate(
		validation.ValidAmount("min_amount", min),
		validation.ValidAmount("max_amount", max),
	); len(errs) > 0 {
		return nil, errs
	}
	return s.store.ListByAmountRange(ctx, min, max, limit, offset)
}

// ListHighRisk returns payments whose fraud score meets minScore.
func (s *Service) ListHighRisk(ctx context.Context, minScore float64, limit, offset int) ([]*Payment, error) {
	return s.store.ListHighRisk(ctx, minScore, limit, offset)
}

// SumByUserAndStatus totals a user's payments in one status.
func (s *Service) SumByUserAndStatus(ctx context.Context, userID string, status Status) (string, error) {
	if !status.Valid() {
		return "", validation.ValidationErrors{{Field: "status", Message: "unknown status"}}
	}
	return s.store.SumByUserAndStatus(ctx, userID, status)
}

// SumCompletedBetween totals COMPLETED payments created in [start, end).
func (s *Service) SumCompletedBetween(ctx context.Context, start, end time.Time) (string, error) {
	return s.store.SumCompletedBetween(ctx, start, end)
}

// ListTransactions returns a payment's ledger entries.
func (s *Service) ListTransactions(ctx context.Context, paymentID string) ([]*Transaction, error) {
	if _, err := s.store.GetPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	return s.store.ListTransactions(ctx, paymentID)
}

// --- internals ---

func (s *Service) validateRequest(userID string, req ProcessRequest) error {
	errs := validation.Validate(
		validation.Required("user_id", userID),
		validation.Required("amount", req.Amount),
		validation.ValidAmount("amount", req.Amount),
		validation.Required("currency", req.Currency),
		validation.ValidCurrency("currency", req.Currency),
		validation.Required("method", req.Method),
		validation.MaxLength("method", req.Method, validation.MaxMethodLength),
		validation.MaxLength("merchant_reference", req.MerchantReference, validation.MaxReferenceLength),
		validation.MaxLength("description", req.Description, validation.MaxDescriptionLength),
	)
	if len(errs) > 0 {
		return errs
	}

	if below, ok := money.Cmp(req.Amount, s.cfg.MinPayment); ok && below < 0 {
		return validation.ValidationErrors{{Field: "amount", Message: "below minimum payment"}}
	}
	if above, ok := money.Cmp(req.Amount, s.cfg.MaxPayment); ok && above > 0 {
		return validation.ValidationErrors{{Field: "amount", Message: "above maximum payment"}}
	}
	return nil
}

func (s *Service) scoreRequest(ctx context.Context, userID, amount, method string) (fraud.Assessment, error) {
	// Behavior risk reads the full history: a dormant account's completed
	// payments still anchor its average, and old failures still count.
	// The frequency bands window themselves by timestamp.
	now := s.now()
	history, err := s.store.ListByUserBetween(ctx, userID, time.Time{}, now)
	if err != nil {
		return fraud.Assessment{}, fmt.Errorf("loading history: %w", err)
	}

	entries := make([]fraud.HistoryPayment, 0, len(history))
	for _, p := range history {
		entries = append(entries, fraud.HistoryPayment{
			Amount:    p.Amount,
			Status:    string(p.Status),
			CreatedAt: p.CreatedAt,
		})
	}

	assessment, err := s.engine.Score(fraud.Request{Amount: amount, Method: method}, entries)
	if err != nil {
		return fraud.Assessment{}, validation.ValidationErrors{{Field: "amount", Message: "invalid amount format"}}
	}
	return assessment, nil
}

// settlementReference finds the processor reference of the payment's
// successful settlement. Refunds are issued against it.
func (s *Service) settlementReference(ctx context.Context, paymentID string) (string, error) {
	txns, err := s.store.ListTransactions(ctx, paymentID)
	if err != nil {
		return "", fmt.Errorf("loading transactions: %w", err)
	}
	for _, t := range txns {
		if t.Type == TxnPayment && t.Status == TxnSuccess {
			return t.Reference, nil
		}
	}
	return "", fmt.Errorf("%w: no settled charge on record for %s", ErrProcessingFailure, paymentID)
}

func (s *Service) settle(ctx context.Context, req gateway.SettleRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SettlementTimeout)
	defer cancel()

	start := time.Now()
	ref, err := s.gateway.Settle(ctx, req)
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	return ref, err
}

func (s *Service) settleRefund(ctx context.Context, req gateway.RefundRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SettlementTimeout)
	defer cancel()

	start := time.Now()
	ref, err := s.gateway.SettleRefund(ctx, req)
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	return ref, err
}

// failPayment records a failed settlement attempt and, for payment
// settlements, moves the row to FAILED so it never sits in PROCESSING
// indefinitely. Ledger bookkeeping here is best-effort: the original
// settlement error is what the caller needs to see.
func (s *Service) failPayment(ctx context.Context, payment *Payment, txnType TransactionType, amount string, cause error) {
	now := s.now()
	txn := &Transaction{
		ID:        idgen.WithPrefix("txn_"),
		PaymentID: payment.ID,
		Type:      txnType,
		Amount:    amount,
		Status:    TxnFailed,
		Note:      cause.Error(),
		CreatedAt: now,
	}
	if err := s.store.AppendTransaction(ctx, txn); err != nil {
		s.logger.Error("recording failed settlement", "payment", payment.ID, "error", err)
	}

	if txnType == TxnPayment {
		if err := s.store.UpdateStatus(ctx, payment.ID, payment.Status, StatusFailed, now); err != nil {
			s.logger.Error("marking payment failed", "payment", payment.ID, "error", err)
		} else {
			payment.Status = StatusFailed
			metrics.PaymentsTotal.WithLabelValues(string(StatusFailed)).Inc()
		}
		s.emitter.EmitPaymentFailed(payment.UserID, payment.ID, cause.Error())
	}

	s.logger.Warn("settlement failed",
		"payment", payment.ID, "type", txnType, "error", cause)
}
