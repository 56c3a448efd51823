package payments

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mbd888/paygate/internal/money"
)

// MemoryStore is an in-memory ledger for demo/development. All
// operations take one lock, which gives the per-payment linearizability
// the controller expects.
type MemoryStore struct {
	mu       sync.RWMutex
	payments map[string]*Payment // by ID
	refs     map[string]string   // merchant reference → payment ID
	txns     map[string][]*Transaction
}

// NewMemoryStore creates a new in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments: make(map[string]*Payment),
		refs:     make(map[string]string),
		txns:     make(map[string][]*Transaction),
	}
}

func (m *MemoryStore) CreatePayment(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.MerchantReference != "" {
		if _, exists := m.refs[p.MerchantReference]; exists {
			return ErrDuplicateReference
		}
		m.refs[p.MerchantReference] = p.ID
	}
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MemoryStore) GetPayment(_ context.Context, id string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.payments[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryStore) GetByMerchantReference(_ context.Context, ref string) (*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.refs[ref]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *m.payments[id]
	return &cp, nil
}

func (m *MemoryStore) UpdateStatus(_ context.Context, id string, expected, next Status, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if p.Status != expected {
		return ErrInvalidState
	}
	p.Status = next
	p.UpdatedAt = at
	return nil
}

func (m *MemoryStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filter(limit, offset, func(p *Payment) bool {
		return p.UserID == userID
	}), nil
}

func (m *MemoryStore) ListByUserBetween(_ context.Context, userID string, start, end time.Time) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filter(0, 0, func(p *Payment) bool {
		return p.UserID == userID && !p.CreatedAt.Before(start) && p.CreatedAt.Before(end)
	}), nil
}

func (m *MemoryStore) ListByStatus(_ context.Context, status Status, limit, offset int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filter(limit, offset, func(p *Payment) bool {
		return p.Status == status
	}), nil
}

func (m *MemoryStore) ListByAmountRange(_ context.Context, min, max string, limit, offset int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filter(limit, offset, func(p *Payment) bool {
		lo, ok1 := money.Cmp(p.Amount, min)
		hi, ok2 := money.Cmp(p.Amount, max)
		return ok1 && ok2 && lo >= 0 && hi <= 0
	}), nil
}

func (m *MemoryStore) ListHighRisk(_ context.Context, minScore float64, limit, offset int) ([]*Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.filter(limit, offset, func(p *Payment) bool {
		return p.FraudScore >= minScore
	}), nil
}

func (m *MemoryStore) SumByUserAndStatus(_ context.Context, userID string, status Status) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := "0.00"
	for _, p := range m.payments {
		if p.UserID == userID && p.Status == status {
			if sum, ok := money.Add(total, p.Amount); ok {
				total = sum
			}
		}
	}
	return total, nil
}

func (m *MemoryStore) SumCompletedBetween(_ context.Context, start, end time.Time) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := "0.00"
	for _, p := range m.payments {
		if p.Status == StatusCompleted && !p.CreatedAt.Before(start) && p.CreatedAt.Before(end) {
			if sum, ok := money.Add(total, p.Amount); ok {
				total = sum
			}
		}
	}
	return total, nil
}

func (m *MemoryStore) AppendTransaction(_ context.Context, t *Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.payments[t.PaymentID]
	if !ok {
		return ErrPaymentNotFound
	}

	// The refund cap is checked under the same lock as the append, so
	// concurrent refunds cannot jointly overdraw the payment.
	if t.Type == TxnRefund && t.Status == TxnSuccess {
		refunded := "0.00"
		for _, prev := range m.txns[t.PaymentID] {
			if prev.Type == TxnRefund && prev.Status == TxnSuccess {
				if sum, ok := money.Add(refunded, prev.Amount); ok {
					refunded = sum
				}
			}
		}
		newTotal, ok := money.Add(refunded, t.Amount)
		if !ok {
			return fmt.Errorf("payments: invalid transaction amount %q", t.Amount)
		}
		if cmp, ok := money.Cmp(newTotal, p.Amount); ok && cmp > 0 {
			return ErrRefundExceedsTotal
		}
	}

	cp := *t
	m.txns[t.PaymentID] = append(m.txns[t.PaymentID], &cp)
	return nil
}

func (m *MemoryStore) ListTransactions(_ context.Context, paymentID string) ([]*Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.txns[paymentID]
	out := make([]*Transaction, 0, len(list))
	for _, t := range list {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) SumRefunds(_ context.Context, paymentID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := "0.00"
	for _, t := range m.txns[paymentID] {
		if t.Type == TxnRefund && t.Status == TxnSuccess {
			if sum, ok := money.Add(total, t.Amount); ok {
				total = sum
			}
		}
	}
	return total, nil
}

// filter returns matching payments newest first. Callers hold the lock.
func (m *MemoryStore) filter(limit, offset int, match func(*Payment) bool) []*Payment {
	var out []*Payment
	for _, p := range m.payments {
		if match(p) {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(out) {
			return nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
