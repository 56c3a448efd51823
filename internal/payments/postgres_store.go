package payments

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	"github.com/lib/pq"

	"github.com/mbd888/paygate/internal/money"
)

// PostgresStore persists the ledger in PostgreSQL. Amounts are stored
// as integer cents; merchant-reference uniqueness is a partial unique
// index, so the guard holds under concurrent inserts.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed ledger.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) CreatePayment(ctx context.Context, pay *Payment) error {
	cents, ok := money.Parse(pay.Amount)
	if !ok {
		return fmt.Errorf("payments: invalid amount %q", pay.Amount)
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO payments (id, user_id, amount_cents, currency, status, method,
			merchant_reference, description, fraud_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11)`,
		pay.ID, pay.UserID, cents.Int64(), pay.Currency, string(pay.Status), pay.Method,
		pay.MerchantReference, pay.Description, pay.FraudScore, pay.CreatedAt, pay.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

const paymentColumns = `id, user_id, amount_cents, currency, status, method,
	merchant_reference, description, fraud_score, created_at, updated_at`

func (p *PostgresStore) GetPayment(ctx context.Context, id string) (*Payment, error) {
	return scanPayment(p.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (p *PostgresStore) GetByMerchantReference(ctx context.Context, ref string) (*Payment, error) {
	return scanPayment(p.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+` FROM payments WHERE merchant_reference = $1`, ref))
}

func (p *PostgresStore) UpdateStatus(ctx context.Context, id string, expected, next Status, at time.Time) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE payments SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`,
		string(next), at, id, string(expected),
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing row from a lost compare-and-set race.
		var exists bool
		if err := p.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrPaymentNotFound
		}
		return ErrInvalidState
	}
	return nil
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*Payment, error) {
	return p.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, normalizeLimit(limit), offset)
}

func (p *PostgresStore) ListByUserBetween(ctx context.Context, userID string, start, end time.Time) ([]*Payment, error) {
	return p.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE user_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC`,
		userID, start, end)
}

func (p *PostgresStore) ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Payment, error) {
	return p.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		string(status), normalizeLimit(limit), offset)
}

func (p *PostgresStore) ListByAmountRange(ctx context.Context, min, max string, limit, offset int) ([]*Payment, error) {
	minCents, ok := money.Parse(min)
	if !ok {
		return nil, fmt.Errorf("payments: invalid min amount %q", min)
	}
	maxCents, ok := money.Parse(max)
	if !ok {
		return nil, fmt.Errorf("payments: invalid max amount %q", max)
	}
	return p.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE amount_cents BETWEEN $1 AND $2
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		minCents.Int64(), maxCents.Int64(), normalizeLimit(limit), offset)
}

func (p *PostgresStore) ListHighRisk(ctx context.Context, minScore float64, limit, offset int) ([]*Payment, error) {
	return p.listPayments(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE fraud_score >= $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		minScore, normalizeLimit(limit), offset)
}

func (p *PostgresStore) SumByUserAndStatus(ctx context.Context, userID string, status Status) (string, error) {
	var cents int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM payments
		WHERE user_id = $1 AND status = $2`, userID, string(status)).Scan(&cents)
	if err != nil {
		return "", err
	}
	return money.Format(big.NewInt(cents)), nil
}

func (p *PostgresStore) SumCompletedBetween(ctx context.Context, start, end time.Time) (string, error) {
	var cents int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM payments
		WHERE status = $1 AND created_at >= $2 AND created_at < $3`,
		string(StatusCompleted), start, end).Scan(&cents)
	if err != nil {
		return "", err
	}
	return money.Format(big.NewInt(cents)), nil
}

const insertTransactionSQL = `
	INSERT INTO transactions (id, payment_id, type, amount_cents, status,
		reference, note, processed_at, created_at)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9)`

func (p *PostgresStore) AppendTransaction(ctx context.Context, t *Transaction) error {
	cents, ok := money.Parse(t.Amount)
	if !ok {
		return fmt.Errorf("payments: invalid transaction amount %q", t.Amount)
	}
	if t.Type == TxnRefund && t.Status == TxnSuccess {
		return p.appendRefund(ctx, t, cents.Int64())
	}
	_, err := p.db.ExecContext(ctx, insertTransactionSQL,
		t.ID, t.PaymentID, string(t.Type), cents.Int64(), string(t.Status),
		t.Reference, t.Note, t.ProcessedAt, t.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23503" {
			return ErrPaymentNotFound
		}
		return err
	}
	return nil
}

// appendRefund inserts a successful refund while holding the payment
// row lock, so concurrent refunds serialize against the balance check.
func (p *PostgresStore) appendRefund(ctx context.Context, t *Transaction, cents int64) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var amountCents int64
	err = tx.QueryRowContext(ctx,
		`SELECT amount_cents FROM payments WHERE id = $1 FOR UPDATE`, t.PaymentID).Scan(&amountCents)
	if err == sql.ErrNoRows {
		return ErrPaymentNotFound
	}
	if err != nil {
		return err
	}

	var refunded int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		WHERE payment_id = $1 AND type = $2 AND status = $3`,
		t.PaymentID, string(TxnRefund), string(TxnSuccess)).Scan(&refunded)
	if err != nil {
		return err
	}
	if refunded+cents > amountCents {
		return ErrRefundExceedsTotal
	}

	if _, err := tx.ExecContext(ctx, insertTransactionSQL,
		t.ID, t.PaymentID, string(t.Type), cents, string(t.Status),
		t.Reference, t.Note, t.ProcessedAt, t.CreatedAt,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) ListTransactions(ctx context.Context, paymentID string) ([]*Transaction, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, payment_id, type, amount_cents, status, reference, note, processed_at, created_at
		FROM transactions WHERE payment_id = $1 ORDER BY created_at`, paymentID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var txns []*Transaction
	for rows.Next() {
		t := &Transaction{}
		var (
			cents       int64
			txnType     string
			status      string
			reference   sql.NullString
			processedAt sql.NullTime
		)
		if err := rows.Scan(&t.ID, &t.PaymentID, &txnType, &cents, &status,
			&reference, &t.Note, &processedAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = TransactionType(txnType)
		t.Amount = money.Format(big.NewInt(cents))
		t.Status = TransactionStatus(status)
		if reference.Valid {
			t.Reference = reference.String
		}
		if processedAt.Valid {
			at := processedAt.Time
			t.ProcessedAt = &at
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

func (p *PostgresStore) SumRefunds(ctx context.Context, paymentID string) (string, error) {
	var cents int64
	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM transactions
		WHERE payment_id = $1 AND type = $2 AND status = $3`,
		paymentID, string(TxnRefund), string(TxnSuccess)).Scan(&cents)
	if err != nil {
		return "", err
	}
	return money.Format(big.NewInt(cents)), nil
}

func (p *PostgresStore) listPayments(ctx context.Context, query string, args ...interface{}) ([]*Payment, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var payments []*Payment
	for rows.Next() {
		pay, err := scanPaymentRow(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, pay)
	}
	return payments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row *sql.Row) (*Payment, error) {
	pay, err := scanPaymentRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrPaymentNotFound
	}
	return pay, err
}

func scanPaymentRow(row rowScanner) (*Payment, error) {
	pay := &Payment{}
	var (
		cents     int64
		status    string
		reference sql.NullString
	)
	err := row.Scan(&pay.ID, &pay.UserID, &cents, &pay.Currency, &status, &pay.Method,
		&reference, &pay.Description, &pay.FraudScore, &pay.CreatedAt, &pay.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pay.Amount = money.Format(big.NewInt(cents))
	pay.Status = Status(status)
	if reference.Valid {
		pay.MerchantReference = reference.String
	}
	return pay, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

// Migrate creates the ledger tables (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS payments (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL,
			amount_cents        BIGINT NOT NULL CHECK (amount_cents >= 0),
			currency            TEXT NOT NULL,
			status              TEXT NOT NULL,
			method              TEXT NOT NULL,
			merchant_reference  TEXT,
			description         TEXT NOT NULL DEFAULT '',
			fraud_score         DOUBLE PRECISION NOT NULL DEFAULT 0,
			created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_merchant_reference
			ON payments(merchant_reference) WHERE merchant_reference IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_payments_user_created ON payments(user_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);
		CREATE INDEX IF NOT EXISTS idx_payments_fraud_score ON payments(fraud_score);

		CREATE TABLE IF NOT EXISTS transactions (
			id            TEXT PRIMARY KEY,
			payment_id    TEXT NOT NULL REFERENCES payments(id),
			type          TEXT NOT NULL,
			amount_cents  BIGINT NOT NULL CHECK (amount_cents >= 0),
			status        TEXT NOT NULL,
			reference     TEXT,
			note          TEXT NOT NULL DEFAULT '',
			processed_at  TIMESTAMPTZ,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_transactions_payment ON transactions(payment_id, created_at);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
