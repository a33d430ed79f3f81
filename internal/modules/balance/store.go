package balance

import (
	"context"

	"github.com/shopspring/decimal"
)

// Mutator is the view a ledger operation gets inside Store.Mutate. Changes
// to the balance row and appended transactions commit together or not at all.
type Mutator interface {
	// Balance returns the row for the customer, created zero-valued on first
	// use. Mutations to the returned struct are persisted on commit.
	Balance() *CustomerBalance

	// OpenReservation returns the still-unconsumed reserved amount for an
	// order: signed sum of its reservation and purchase entries.
	OpenReservation(orderID string) (decimal.Decimal, error)

	// Append stages a ledger entry for the commit.
	Append(t Transaction)
}

// Store serializes all mutations per customer (row lock in the gorm
// implementation, per-customer mutex in the in-memory one). Two concurrent
// operations on the same customer never interleave inside Mutate.
type Store interface {
	Mutate(ctx context.Context, customerID string, fn func(m Mutator) error) error
	Get(ctx context.Context, customerID string) (CustomerBalance, error)
	Transactions(ctx context.Context, customerID string, limit int) ([]Transaction, error)

	// ReplaySum recomputes the balance from the ledger: signed sum of all
	// non-reservation entries.
	ReplaySum(ctx context.Context, customerID string) (decimal.Decimal, error)
}
