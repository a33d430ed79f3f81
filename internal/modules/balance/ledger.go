package balance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/etnikbeqiri/esim-sub001/internal/events"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

// Ledger is the only writer of CustomerBalance. Every mutating operation
// runs in a single Store.Mutate (one atomic unit per call) and appends
// exactly one transaction with before/after balance snapshots.
type Ledger struct {
	store  Store
	events events.Publisher
	logger *slog.Logger
}

func NewLedger(store Store, pub events.Publisher, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, events: pub, logger: logger}
}

func (l *Ledger) Store() Store { return l.store }

// TxBinder is implemented by stores that can join an enclosing database
// transaction.
type TxBinder interface {
	WithTx(tx *gorm.DB) Store
}

// WithTx returns a ledger whose mutations commit and roll back with tx.
// Callers that move a payment and the balance in one unit must use this:
// a ledger writing through its own connection could commit while the
// payment transition rolls back. Stores without transaction support (the
// in-memory one) are returned unchanged.
func (l *Ledger) WithTx(tx *gorm.DB) *Ledger {
	b, ok := l.store.(TxBinder)
	if !ok {
		return l
	}
	cp := *l
	cp.store = b.WithTx(tx)
	return &cp
}

// Reserve earmarks funds for an in-flight order. The balance itself is
// untouched; only available shrinks.
func (l *Ledger) Reserve(ctx context.Context, customerID string, amount money.Amount, orderID string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	var snap CustomerBalance
	err := l.store.Mutate(ctx, customerID, func(m Mutator) error {
		b := m.Balance()
		if err := bindCurrency(b, amount.Currency); err != nil {
			return err
		}
		if b.Available().LessThan(amount.Value) {
			return ErrInsufficientFunds
		}
		b.Reserved = b.Reserved.Add(amount.Value)
		m.Append(l.entry(b, TxReservation, amount.Value, b.Balance, &orderID, nil,
			"funds reserved for order"))
		snap = *b
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, events.BalanceReserved, snap, amount, orderID, "")
	return nil
}

// ReleaseReservation gives earmarked funds back after a failed or abandoned
// payment. Compensating entry; balance delta stays zero.
func (l *Ledger) ReleaseReservation(ctx context.Context, customerID string, amount money.Amount, orderID string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	var snap CustomerBalance
	err := l.store.Mutate(ctx, customerID, func(m Mutator) error {
		b := m.Balance()
		open, err := m.OpenReservation(orderID)
		if err != nil {
			return err
		}
		if open.LessThan(amount.Value) {
			return ErrNoReservation
		}
		b.Reserved = b.Reserved.Sub(amount.Value)
		m.Append(l.entry(b, TxReservation, amount.Value.Neg(), b.Balance, &orderID, nil,
			"reservation released"))
		snap = *b
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, events.BalanceAdjusted, snap, amount, orderID, "")
	return nil
}

// DeductFromReservation converts a reservation into a realized deduction.
// Requires an open reservation covering the amount — the defense against
// double-deduction on duplicate confirmations.
func (l *Ledger) DeductFromReservation(ctx context.Context, customerID string, amount money.Amount, orderID string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	var snap CustomerBalance
	err := l.store.Mutate(ctx, customerID, func(m Mutator) error {
		b := m.Balance()
		if err := bindCurrency(b, amount.Currency); err != nil {
			return err
		}
		open, err := m.OpenReservation(orderID)
		if err != nil {
			return err
		}
		if open.LessThan(amount.Value) {
			return ErrNoReservation
		}
		before := b.Balance
		b.Reserved = b.Reserved.Sub(amount.Value)
		b.Balance = b.Balance.Sub(amount.Value)
		m.Append(l.entry(b, TxPurchase, amount.Value.Neg(), before, &orderID, nil,
			"purchase deducted from reservation"))
		snap = *b
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, events.BalanceDeducted, snap, amount, orderID, "")
	return nil
}

// DirectDeduct takes funds without a prior reservation (admin adjustments).
func (l *Ledger) DirectDeduct(ctx context.Context, customerID string, amount money.Amount, description string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if description == "" {
		description = "direct deduction"
	}

	var snap CustomerBalance
	err := l.store.Mutate(ctx, customerID, func(m Mutator) error {
		b := m.Balance()
		if err := bindCurrency(b, amount.Currency); err != nil {
			return err
		}
		if b.Available().LessThan(amount.Value) {
			return ErrInsufficientFunds
		}
		before := b.Balance
		b.Balance = b.Balance.Sub(amount.Value)
		m.Append(l.entry(b, TxPurchase, amount.Value.Neg(), before, nil, nil, description))
		snap = *b
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, events.BalanceAdjusted, snap, amount, "", "")
	return nil
}

// TopUp credits confirmed incoming funds. Never rejects: the gateway
// confirmation already validated the money arrived.
func (l *Ledger) TopUp(ctx context.Context, customerID string, amount money.Amount, paymentID string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	var snap CustomerBalance
	err := l.store.Mutate(ctx, customerID, func(m Mutator) error {
		b := m.Balance()
		if err := bindCurrency(b, amount.Currency); err != nil {
			return err
		}
		before := b.Balance
		b.Balance = b.Balance.Add(amount.Value)
		m.Append(l.entry(b, TxTopUp, amount.Value, before, nil, &paymentID, "balance top-up"))
		snap = *b
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, events.BalanceTopUpCompleted, snap, amount, "", paymentID)
	return nil
}

// Refund credits money back to the wallet.
func (l *Ledger) Refund(ctx context.Context, customerID string, amount money.Amount, paymentID, description string) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if description == "" {
		description = "refund"
	}

	var snap CustomerBalance
	err := l.store.Mutate(ctx, customerID, func(m Mutator) error {
		b := m.Balance()
		if err := bindCurrency(b, amount.Currency); err != nil {
			return err
		}
		before := b.Balance
		b.Balance = b.Balance.Add(amount.Value)
		m.Append(l.entry(b, TxRefund, amount.Value, before, nil, &paymentID, description))
		snap = *b
		return nil
	})
	if err != nil {
		return err
	}

	l.publish(ctx, events.BalanceAdjusted, snap, amount, "", paymentID)
	return nil
}

func (l *Ledger) Balance(ctx context.Context, customerID string) (CustomerBalance, error) {
	return l.store.Get(ctx, customerID)
}

func (l *Ledger) Transactions(ctx context.Context, customerID string, limit int) ([]Transaction, error) {
	return l.store.Transactions(ctx, customerID, limit)
}

// Drift is the result of a ledger replay check.
type Drift struct {
	CustomerID string
	Stored     decimal.Decimal
	Recomputed decimal.Decimal
}

func (d Drift) InSync() bool { return d.Stored.Equal(d.Recomputed) }

// Recompute replays the ledger and compares against the stored balance.
// A mismatch is a data-integrity alarm, logged at error level.
func (l *Ledger) Recompute(ctx context.Context, customerID string) (Drift, error) {
	stored, err := l.store.Get(ctx, customerID)
	if err != nil {
		return Drift{}, err
	}
	replayed, err := l.store.ReplaySum(ctx, customerID)
	if err != nil {
		return Drift{}, err
	}
	d := Drift{CustomerID: customerID, Stored: stored.Balance, Recomputed: replayed}
	if !d.InSync() {
		l.logger.ErrorContext(ctx, "balance ledger drift detected",
			"customer_id", customerID,
			"stored", d.Stored.String(),
			"recomputed", d.Recomputed.String())
	}
	return d, nil
}

func (l *Ledger) entry(b *CustomerBalance, txType string, amount, before decimal.Decimal, orderID, paymentID *string, description string) Transaction {
	return Transaction{
		ID:            uuid.NewString(),
		CustomerID:    b.CustomerID,
		Type:          txType,
		Amount:        amount,
		Currency:      b.Currency,
		BalanceBefore: before,
		BalanceAfter:  b.Balance,
		OrderID:       orderID,
		PaymentID:     paymentID,
		Description:   description,
		CreatedAt:     time.Now(),
	}
}

func (l *Ledger) publish(ctx context.Context, name string, snap CustomerBalance, amount money.Amount, orderID, paymentID string) {
	// at-least-once hint for downstream consumers; DB state is authoritative
	_ = l.events.Publish(ctx, name, events.BalanceEvent{
		CustomerID:    snap.CustomerID,
		Amount:        amount.Value.StringFixed(2),
		Currency:      amount.Currency,
		BalanceAfter:  snap.Balance.StringFixed(2),
		ReservedAfter: snap.Reserved.StringFixed(2),
		OrderID:       orderID,
		PaymentID:     paymentID,
	})
}

// bindCurrency fixes the wallet currency on first use and rejects mixed
// currencies afterwards.
func bindCurrency(b *CustomerBalance, currency string) error {
	if b.Currency == "" {
		b.Currency = currency
		return nil
	}
	if b.Currency != currency {
		return ErrCurrencyMismatch
	}
	return nil
}
