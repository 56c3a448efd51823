package gateway

import (
	"context"
	"time"

	"github.com/mbd888/paygate/internal/idgen"
)

// Simulated is a settlement gateway for demo/development. It settles
// everything after a short artificial delay and mints references in the
// processor's format ("TXN-" for charges, "RFD-" for refunds).
type Simulated struct {
	// Delay approximates processor round-trip time. Zero means no delay.
	Delay time.Duration

	// FailSettle / FailRefund force failures, for exercising the
	// compensation path in tests and demos.
	FailSettle bool
	FailRefund bool
}

// NewSimulated creates a simulated gateway with a realistic delay.
func NewSimulated() *Simulated {
	return &Simulated{Delay: 100 * time.Millisecond}
}

func (s *Simulated) Settle(ctx context.Context, _ SettleRequest) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if s.FailSettle {
		return "", ErrSettlementFailed
	}
	return idgen.Reference("TXN-"), nil
}

func (s *Simulated) SettleRefund(ctx context.Context, _ RefundRequest) (string, error) {
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	if s.FailRefund {
		return "", ErrRefundFailed
	}
	return idgen.Reference("RFD-"), nil
}

func (s *Simulated) wait(ctx context.Context) error {
	if s.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

var _ Gateway = (*Simulated)(nil)
