package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mbd888/paygate/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	payment := &Payment{
		ID:                "pay_pg_1",
		UserID:            "usr_1",
		Amount:            "123.45",
		Currency:          "USD",
		Status:            StatusProcessing,
		Method:            "CREDIT_CARD",
		MerchantReference: "order-pg-1",
		Description:       "integration round trip",
		FraudScore:        0.25,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := store.CreatePayment(ctx, payment); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	got, err := store.GetPayment(ctx, "pay_pg_1")
	if err != nil {
		t.Fatalf("GetPayment: %v", err)
	}
	if got.Amount != "123.45" || got.Status != StatusProcessing || got.FraudScore != 0.25 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.MerchantReference != "order-pg-1" {
		t.Errorf("merchant reference = %q", got.MerchantReference)
	}

	byRef, err := store.GetByMerchantReference(ctx, "order-pg-1")
	if err != nil || byRef.ID != "pay_pg_1" {
		t.Errorf("GetByMerchantReference = %v, %v", byRef, err)
	}

	// Unique index enforces the reference.
	dup := *payment
	dup.ID = "pay_pg_2"
	if err := store.CreatePayment(ctx, &dup); !errors.Is(err, ErrDuplicateReference) {
		t.Errorf("duplicate reference = %v, want ErrDuplicateReference", err)
	}
}

func TestPostgresStoreStatusAndTransactions(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Microsecond)
	payment := &Payment{
		ID: "pay_pg_1", UserID: "usr_1", Amount: "100.00", Currency: "USD",
		Status: StatusProcessing, Method: "CREDIT_CARD", CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreatePayment(ctx, payment); err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}

	if err := store.UpdateStatus(ctx, "pay_pg_1", StatusProcessing, StatusCompleted, now.Add(time.Second)); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := store.UpdateStatus(ctx, "pay_pg_1", StatusProcessing, StatusFailed, now); !errors.Is(err, ErrInvalidState) {
		t.Errorf("stale UpdateStatus = %v, want ErrInvalidState", err)
	}
	if err := store.UpdateStatus(ctx, "pay_missing", StatusProcessing, StatusFailed, now); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("missing UpdateStatus = %v, want ErrPaymentNotFound", err)
	}

	processed := now.Add(time.Second)
	txn := &Transaction{
		ID: "txn_pg_1", PaymentID: "pay_pg_1", Type: TxnPayment, Amount: "100.00",
		Status: TxnSuccess, Reference: "TXN-ABCD1234", ProcessedAt: &processed, CreatedAt: processed,
	}
	if err := store.AppendTransaction(ctx, txn); err != nil {
		t.Fatalf("AppendTransaction: %v", err)
	}

	orphan := &Transaction{
		ID: "txn_pg_2", PaymentID: "pay_missing", Type: TxnPayment, Amount: "1.00",
		Status: TxnSuccess, CreatedAt: now,
	}
	if err := store.AppendTransaction(ctx, orphan); !errors.Is(err, ErrPaymentNotFound) {
		t.Errorf("orphan transaction = %v, want ErrPaymentNotFound", err)
	}

	refund := &Transaction{
		ID: "txn_pg_3", PaymentID: "pay_pg_1", Type: TxnRefund, Amount: "30.00",
		Status: TxnSuccess, Reference: "RFD-ABCD1234", Note: "damaged", CreatedAt: now.Add(2 * time.Second),
	}
	if err := store.AppendTransaction(ctx, refund); err != nil {
		t.Fatalf("AppendTransaction refund: %v", err)
	}

	txns, err := store.ListTransactions(ctx, "pay_pg_1")
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 2 || txns[0].ID != "txn_pg_1" || txns[1].Note != "damaged" {
		t.Errorf("ListTransactions = %+v", txns)
	}
	if txns[0].ProcessedAt == nil || !txns[0].ProcessedAt.Equal(processed) {
		t.Errorf("processed_at round trip = %v", txns[0].ProcessedAt)
	}

	total, err := store.SumRefunds(ctx, "pay_pg_1")
	if err != nil || total != "30.00" {
		t.Errorf("SumRefunds = %s, %v, want 30.00", total, err)
	}

	// A refund that would overdraw the payment is rejected at the store.
	over := &Transaction{
		ID: "txn_pg_4", PaymentID: "pay_pg_1", Type: TxnRefund, Amount: "80.00",
		Status: TxnSuccess, CreatedAt: now.Add(3 * time.Second),
	}
	if err := store.AppendTransaction(ctx, over); !errors.Is(err, ErrRefundExceedsTotal) {
		t.Errorf("over-refund = %v, want ErrRefundExceedsTotal", err)
	}
	if total, err = store.SumRefunds(ctx, "pay_pg_1"); err != nil || total != "30.00" {
		t.Errorf("SumRefunds after rejected refund = %s, %v, want 30.00", total, err)
	}
}

func TestPostgresStoreQueries(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond).Add(-time.Hour)
	seed := []*Payment{
		{ID: "pay_a", UserID: "usr_1", Amount: "50.00", Currency: "USD",
			Status: StatusCompleted, Method: "CREDIT_CARD", FraudScore: 0.1,
			CreatedAt: base, UpdatedAt: base},
		{ID: "pay_b", UserID: "usr_1", Amount: "500.00", Currency: "USD",
			Status: StatusCompleted, Method: "CREDIT_CARD", FraudScore: 0.5,
			CreatedAt: base.Add(time.Minute), UpdatedAt: base.Add(time.Minute)},
		{ID: "pay_c", UserID: "usr_2", Amount: "20.00", Currency: "USD",
			Status: StatusFailed, Method: "DEBIT_CARD", FraudScore: 0.7,
			CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base.Add(2 * time.Minute)},
	}
	for _, p := range seed {
		if err := store.CreatePayment(ctx, p); err != nil {
			t.Fatalf("CreatePayment(%s): %v", p.ID, err)
		}
	}

	byUser, err := store.ListByUser(ctx, "usr_1", 10, 0)
	if err != nil || len(byUser) != 2 || byUser[0].ID != "pay_b" {
		t.Errorf("ListByUser = %v, %v", byUser, err)
	}

	window, err := store.ListByUserBetween(ctx, "usr_1", base.Add(30*time.Second), base.Add(90*time.Second))
	if err != nil || len(window) != 1 || window[0].ID != "pay_b" {
		t.Errorf("ListByUserBetween = %v, %v", window, err)
	}

	failed, err := store.ListByStatus(ctx, StatusFailed, 10, 0)
	if err != nil || len(failed) != 1 || failed[0].ID != "pay_c" {
		t.Errorf("ListByStatus = %v, %v", failed, err)
	}

	ranged, err := store.ListByAmountRange(ctx, "30.00", "100.00", 10, 0)
	if err != nil || len(ranged) != 1 || ranged[0].ID != "pay_a" {
		t.Errorf("ListByAmountRange = %v, %v", ranged, err)
	}

	risky, err := store.ListHighRisk(ctx, 0.5, 10, 0)
	if err != nil || len(risky) != 2 {
		t.Errorf("ListHighRisk = %v, %v", risky, err)
	}

	total, err := store.SumByUserAndStatus(ctx, "usr_1", StatusCompleted)
	if err != nil || total != "550.00" {
		t.Errorf("SumByUserAndStatus = %s, %v, want 550.00", total, err)
	}

	completed, err := store.SumCompletedBetween(ctx, base, base.Add(30*time.Second))
	if err != nil || completed != "50.00" {
		t.Errorf("SumCompletedBetween = %s, %v, want 50.00", completed, err)
	}
}
