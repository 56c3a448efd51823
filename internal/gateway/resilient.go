package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/paygate/internal/circuitbreaker"
	"github.com/mbd888/paygate/internal/retry"
)

// Breaker keys. Settles and refunds trip independently.
const (
	keySettle = "settle"
	keyRefund = "refund"
)

// Resilient wraps a Gateway with retries and a circuit breaker.
//
// Settles are retried with backoff: each payment carries a unique ID
// the processor can use as an idempotency key, so a retry can never
// double-charge. Refunds get a single attempt; a failed refund is
// reported to the caller, who can safely re-issue it.
type Resilient struct {
	inner   Gateway
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger

	// MaxAttempts and BaseDelay control settle retries.
	MaxAttempts int
	BaseDelay   time.Duration
}

// NewResilient wraps inner with retry and circuit-breaking behavior.
func NewResilient(inner Gateway, logger *slog.Logger) *Resilient {
	r := &Resilient{
		inner:       inner,
		breaker:     circuitbreaker.New(5, 30*time.Second),
		logger:      logger,
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
	}
	r.breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		logger.Warn("gateway circuit state changed", "key", key, "from", from.String(), "to", to.String())
	})
	return r
}

func (r *Resilient) Settle(ctx context.Context, req SettleRequest) (string, error) {
	if !r.breaker.Allow(keySettle) {
		return "", fmt.Errorf("%w: settlement circuit open", ErrSettlementFailed)
	}

	var ref string
	err := retry.Do(ctx, r.MaxAttempts, r.BaseDelay, func() error {
		var attemptErr error
		ref, attemptErr = r.inner.Settle(ctx, req)
		return attemptErr
	})
	if err != nil {
		r.breaker.RecordFailure(keySettle)
		return "", err
	}

	r.breaker.RecordSuccess(keySettle)
	return ref, nil
}

func (r *Resilient) SettleRefund(ctx context.Context, req RefundRequest) (string, error) {
	if !r.breaker.Allow(keyRefund) {
		return "", fmt.Errorf("%w: refund circuit open", ErrRefundFailed)
	}

	ref, err := r.inner.SettleRefund(ctx, req)
	if err != nil {
		r.breaker.RecordFailure(keyRefund)
		return "", err
	}

	r.breaker.RecordSuccess(keyRefund)
	return ref, nil
}

var _ Gateway = (*Resilient)(nil)
