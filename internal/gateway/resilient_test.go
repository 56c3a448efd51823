package gateway

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mbd888/paygate/internal/logging"
)

// flakyGateway fails the first failUntil calls, then succeeds.
type flakyGateway struct {
	calls     atomic.Int32
	failUntil int32
}

func (f *flakyGateway) Settle(_ context.Context, _ SettleRequest) (string, error) {
	if f.calls.Add(1) <= f.failUntil {
		return "", errors.New("transient network error")
	}
	return "TXN-FLAKY001", nil
}

func (f *flakyGateway) SettleRefund(_ context.Context, _ RefundRequest) (string, error) {
	if f.calls.Add(1) <= f.failUntil {
		return "", errors.New("transient network error")
	}
	return "RFD-FLAKY001", nil
}

func newResilientForTest(inner Gateway) *Resilient {
	r := NewResilient(inner, logging.NewNop())
	r.BaseDelay = time.Millisecond
	return r
}

func TestResilientRetriesSettle(t *testing.T) {
	inner := &flakyGateway{failUntil: 2}
	r := newResilientForTest(inner)

	ref, err := r.Settle(context.Background(), SettleRequest{PaymentID: "pay_1", Amount: "10.00", Currency: "USD"})
	if err != nil {
		t.Fatalf("Settle: %v", err)
	}
	if ref != "TXN-FLAKY001" {
		t.Errorf("reference = %s", ref)
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("inner calls = %d, want 3", got)
	}
}

func TestResilientSettleExhaustsRetries(t *testing.T) {
	inner := &flakyGateway{failUntil: 100}
	r := newResilientForTest(inner)

	if _, err := r.Settle(context.Background(), SettleRequest{PaymentID: "pay_1"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if got := inner.calls.Load(); got != 3 {
		t.Errorf("inner calls = %d, want 3", got)
	}
}

func TestResilientRefundSingleAttempt(t *testing.T) {
	inner := &flakyGateway{failUntil: 1}
	r := newResilientForTest(inner)

	// Refunds are not retried: the first failure surfaces.
	if _, err := r.SettleRefund(context.Background(), RefundRequest{PaymentID: "pay_1"}); err == nil {
		t.Fatal("expected refund error")
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("inner calls = %d, want 1", got)
	}
}

func TestResilientCircuitOpensAfterFailures(t *testing.T) {
	inner := &flakyGateway{failUntil: 1 << 30}
	r := newResilientForTest(inner)

	// Five failed settle rounds trip the breaker.
	for i := 0; i < 5; i++ {
		if _, err := r.Settle(context.Background(), SettleRequest{PaymentID: "pay_1"}); err == nil {
			t.Fatal("expected settle failure")
		}
	}

	before := inner.calls.Load()
	_, err := r.Settle(context.Background(), SettleRequest{PaymentID: "pay_1"})
	if !errors.Is(err, ErrSettlementFailed) {
		t.Fatalf("open circuit error = %v, want ErrSettlementFailed", err)
	}
	if inner.calls.Load() != before {
		t.Error("open circuit should not reach the inner gateway")
	}

	// Refund circuit is independent of the settle circuit.
	if _, err := r.SettleRefund(context.Background(), RefundRequest{PaymentID: "pay_1"}); err == nil {
		t.Fatal("expected refund failure")
	}
	if inner.calls.Load() != before+1 {
		t.Error("refund should still reach the inner gateway")
	}
}
