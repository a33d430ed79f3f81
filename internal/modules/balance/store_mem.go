package balance

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemStore is an in-memory Store used in tests and local development.
// A single mutex stands in for the database row lock.
type MemStore struct {
	mu       sync.Mutex
	balances map[string]*CustomerBalance
	ledger   []Transaction
}

func NewMemStore() *MemStore {
	return &MemStore{balances: map[string]*CustomerBalance{}}
}

type memMutator struct {
	store  *MemStore
	row    *CustomerBalance
	staged []Transaction
}

func (m *memMutator) Balance() *CustomerBalance { return m.row }

func (m *memMutator) OpenReservation(orderID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, t := range m.store.ledger {
		if t.CustomerID != m.row.CustomerID || t.OrderID == nil || *t.OrderID != orderID {
			continue
		}
		if t.Type == TxReservation || t.Type == TxPurchase {
			sum = sum.Add(t.Amount)
		}
	}
	for _, t := range m.staged {
		if t.OrderID != nil && *t.OrderID == orderID && (t.Type == TxReservation || t.Type == TxPurchase) {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}

func (m *memMutator) Append(t Transaction) { m.staged = append(m.staged, t) }

func (s *MemStore) Mutate(_ context.Context, customerID string, fn func(m Mutator) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.balances[customerID]
	if !ok {
		row = &CustomerBalance{
			CustomerID: customerID,
			Balance:    decimal.Zero,
			Reserved:   decimal.Zero,
		}
		s.balances[customerID] = row
	}

	// work on a copy so a failing fn leaves no change behind
	work := *row
	m := &memMutator{store: s, row: &work}
	if err := fn(m); err != nil {
		return err
	}

	work.UpdatedAt = time.Now()
	*row = work
	s.ledger = append(s.ledger, m.staged...)
	return nil
}

func (s *MemStore) Get(_ context.Context, customerID string) (CustomerBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.balances[customerID]; ok {
		return *row, nil
	}
	return CustomerBalance{CustomerID: customerID, Balance: decimal.Zero, Reserved: decimal.Zero}, nil
}

func (s *MemStore) Transactions(_ context.Context, customerID string, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].CustomerID == customerID {
			out = append(out, s.ledger[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (s *MemStore) ReplaySum(_ context.Context, customerID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := decimal.Zero
	for _, t := range s.ledger {
		if t.CustomerID == customerID && t.Type != TxReservation {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}
