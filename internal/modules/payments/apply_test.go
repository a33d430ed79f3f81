package payments

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnikbeqiri/esim-sub001/internal/events"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/balance"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/orders"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

// memApplyStore backs Applier tests: the same mutator contract as the gorm
// store over plain maps, serialized by one mutex.
type memApplyStore struct {
	mu       sync.Mutex
	payments map[string]*Payment
	orders   map[string]*orders.Order
	ledger   *balance.Ledger
}

func newMemApplyStore(ledger *balance.Ledger) *memApplyStore {
	return &memApplyStore{
		payments: map[string]*Payment{},
		orders:   map[string]*orders.Order{},
		ledger:   ledger,
	}
}

func (s *memApplyStore) InTx(_ context.Context, fn func(m applyMutator) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memApplyMutator{s: s})
}

type memApplyMutator struct{ s *memApplyStore }

func (m *memApplyMutator) LockPayment(_ context.Context, id string) (Payment, error) {
	p, ok := m.s.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return *p, nil
}

func (m *memApplyMutator) TransitionPayment(_ context.Context, id, from string, tr transition) (bool, error) {
	p, ok := m.s.payments[id]
	if !ok || p.Status != from {
		return false, nil
	}
	p.Status = tr.status
	p.UpdatedAt = time.Now()
	if tr.paidAt != nil {
		p.PaidAt = tr.paidAt
	}
	if tr.errorMessage != "" {
		msg := tr.errorMessage
		p.ErrorMessage = &msg
	}
	if tr.clearError {
		p.ErrorMessage = nil
		p.ErrorCode = nil
	}
	if tr.providerRef != "" {
		ref := tr.providerRef
		p.ProviderRef = &ref
	}
	if tr.metadata != nil {
		p.Metadata = tr.metadata
	}
	return true, nil
}

func (m *memApplyMutator) OrderByID(_ context.Context, id string) (orders.Order, error) {
	o, ok := m.s.orders[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return *o, nil
}

func (m *memApplyMutator) MarkOrderProcessing(_ context.Context, id string, paidAt time.Time) error {
	o := m.s.orders[id]
	if o.Status != orders.StatusProcessing {
		o.Status = orders.StatusProcessing
		o.PaidAt = &paidAt
	}
	return nil
}

func (m *memApplyMutator) LockOrder(ctx context.Context, id string) (orders.Order, error) {
	return m.OrderByID(ctx, id)
}

func (m *memApplyMutator) RecordOrderFailure(_ context.Context, o orders.Order, code, reason string) (string, error) {
	row := m.s.orders[o.ID]
	row.RetryCount++
	row.FailureCode = &code
	row.FailureReason = &reason
	if row.RetryCount >= orders.MaxRetries {
		row.Status = orders.StatusFailed
	} else {
		row.Status = orders.StatusPendingRetry
	}
	return row.Status, nil
}

func (m *memApplyMutator) FlagOrderForReview(_ context.Context, id, reason string) error {
	row := m.s.orders[id]
	row.Status = orders.StatusAdminReview
	row.FailureReason = &reason
	return nil
}

func (m *memApplyMutator) Ledger() *balance.Ledger { return m.s.ledger }

func newApplierFixture(t *testing.T) (*Applier, *memApplyStore, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	ledger := balance.NewLedger(balance.NewMemStore(), rec, nil)
	store := newMemApplyStore(ledger)
	return newApplier(store, rec, slog.Default()), store, rec
}

func seedPurchase(store *memApplyStore, provider string) (*Payment, *orders.Order) {
	custID := "cust-1"
	ord := &orders.Order{
		ID:          "ord-internal-1",
		PublicID:    "ord_1",
		CustomerID:  &custID,
		Status:      orders.StatusAwaitingPayment,
		TotalAmount: decimal.RequireFromString("20.00"),
		Currency:    "EUR",
	}
	p := &Payment{
		ID:         "pmt-internal-1",
		PublicID:   "pay_1",
		OrderID:    &ord.ID,
		CustomerID: &custID,
		Provider:   provider,
		Type:       TypePurchase,
		Status:     StatusPending,
		Amount:     ord.TotalAmount,
		Currency:   "EUR",
	}
	store.orders[ord.ID] = ord
	store.payments[p.ID] = p
	return p, ord
}

func TestApplyConfirmExactlyOnce(t *testing.T) {
	ctx := context.Background()
	a, store, rec := newApplierFixture(t)
	p, ord := seedPurchase(store, "stripe")

	sig := Signal{Outcome: gateways.OutcomeConfirmed, GatewayStatus: "paid", TransactionID: "tx-1"}
	require.NoError(t, a.Apply(ctx, p.ID, sig))

	assert.Equal(t, StatusCompleted, store.payments[p.ID].Status)
	assert.NotNil(t, store.payments[p.ID].PaidAt)
	assert.Equal(t, orders.StatusProcessing, store.orders[ord.ID].Status)
	assert.Len(t, rec.Named(events.PaymentCompleted), 1)

	// redelivered terminal signal: status untouched, no second event
	firstPaidAt := store.payments[p.ID].PaidAt
	require.NoError(t, a.Apply(ctx, p.ID, sig))
	assert.Equal(t, StatusCompleted, store.payments[p.ID].Status)
	assert.Equal(t, firstPaidAt, store.payments[p.ID].PaidAt)
	assert.Len(t, rec.Named(events.PaymentCompleted), 1)

	// a late contradictory failure signal is ignored the same way
	require.NoError(t, a.Apply(ctx, p.ID, Signal{Outcome: gateways.OutcomeFailed, GatewayStatus: "expired"}))
	assert.Equal(t, StatusCompleted, store.payments[p.ID].Status)
	assert.Empty(t, rec.Named(events.PaymentFailed))
}

func TestApplyPendingSignalMovesNothing(t *testing.T) {
	ctx := context.Background()
	a, store, rec := newApplierFixture(t)
	p, _ := seedPurchase(store, "stripe")

	require.NoError(t, a.Apply(ctx, p.ID, Signal{Outcome: gateways.OutcomePending, GatewayStatus: "process"}))
	assert.Equal(t, StatusPending, store.payments[p.ID].Status)
	assert.Empty(t, rec.Events)
}

func TestApplyUnknownPayment(t *testing.T) {
	a, _, _ := newApplierFixture(t)
	err := a.Apply(context.Background(), "no-such-id", Signal{Outcome: gateways.OutcomeConfirmed})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyFailRoutesOrderToRetry(t *testing.T) {
	ctx := context.Background()
	a, store, rec := newApplierFixture(t)
	p, ord := seedPurchase(store, "stripe")

	require.NoError(t, a.Apply(ctx, p.ID, Signal{Outcome: gateways.OutcomeFailed, GatewayStatus: "declined"}))

	assert.Equal(t, StatusFailed, store.payments[p.ID].Status)
	assert.Equal(t, "declined", *store.payments[p.ID].ErrorMessage)
	assert.Equal(t, orders.StatusPendingRetry, store.orders[ord.ID].Status)
	assert.Len(t, rec.Named(events.PaymentFailed), 1)
	// not terminal for the order yet
	assert.Empty(t, rec.Named(events.OrderFailed))
}

func TestApplyBalancePurchaseDeductsReservationOnce(t *testing.T) {
	ctx := context.Background()
	a, store, rec := newApplierFixture(t)
	p, ord := seedPurchase(store, string(gateways.ProviderBalance))

	require.NoError(t, store.ledger.TopUp(ctx, "cust-1", money.RequireFromString("50.00", "EUR"), "pay_topup"))
	require.NoError(t, store.ledger.Reserve(ctx, "cust-1", money.RequireFromString("20.00", "EUR"), ord.PublicID))

	sig := Signal{Outcome: gateways.OutcomeConfirmed, GatewayStatus: "immediate"}
	require.NoError(t, a.Apply(ctx, p.ID, sig))
	require.NoError(t, a.Apply(ctx, p.ID, sig))

	b, err := store.ledger.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "30", b.Balance.String())
	assert.True(t, b.Reserved.IsZero())
	assert.Len(t, rec.Named(events.BalanceDeducted), 1)
}

func TestApplyBalancePurchaseFailureReleasesReservation(t *testing.T) {
	ctx := context.Background()
	a, store, _ := newApplierFixture(t)
	p, ord := seedPurchase(store, string(gateways.ProviderBalance))

	require.NoError(t, store.ledger.TopUp(ctx, "cust-1", money.RequireFromString("50.00", "EUR"), "pay_topup"))
	require.NoError(t, store.ledger.Reserve(ctx, "cust-1", money.RequireFromString("20.00", "EUR"), ord.PublicID))

	require.NoError(t, a.Apply(ctx, p.ID, Signal{Outcome: gateways.OutcomeFailed, GatewayStatus: "insufficient"}))

	b, err := store.ledger.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "50", b.Balance.String())
	assert.True(t, b.Reserved.IsZero())
}

func TestApplyTopUpCreditsWalletOnce(t *testing.T) {
	ctx := context.Background()
	a, store, rec := newApplierFixture(t)

	custID := "cust-1"
	p := &Payment{
		ID:         "pmt-topup-1",
		PublicID:   "pay_t1",
		CustomerID: &custID,
		Provider:   "stripe",
		Type:       TypeTopUp,
		Status:     StatusPending,
		Amount:     decimal.RequireFromString("30.00"),
		Currency:   "EUR",
	}
	store.payments[p.ID] = p

	sig := Signal{Outcome: gateways.OutcomeConfirmed, GatewayStatus: "paid"}
	require.NoError(t, a.Apply(ctx, p.ID, sig))
	require.NoError(t, a.Apply(ctx, p.ID, sig))

	b, err := store.ledger.Balance(ctx, custID)
	require.NoError(t, err)
	assert.Equal(t, "30", b.Balance.String())
	assert.Len(t, rec.Named(events.BalanceTopUpCompleted), 1)
	assert.Len(t, rec.Named(events.PaymentCompleted), 1)
}

func TestApplyAmountMismatchFlagsOrderForReview(t *testing.T) {
	ctx := context.Background()
	a, store, rec := newApplierFixture(t)
	p, ord := seedPurchase(store, "cryptomus")

	require.NoError(t, a.Apply(ctx, p.ID, Signal{
		Outcome:       gateways.OutcomeConfirmed,
		GatewayStatus: "paid_over",
		Metadata: map[string]string{
			"invoice_amount": "20.00",
			"paid_amount":    "25.00",
			"overpaid":       "true",
		},
	}))

	assert.Equal(t, StatusCompleted, store.payments[p.ID].Status)
	assert.Equal(t, orders.StatusAdminReview, store.orders[ord.ID].Status)
	assert.Contains(t, *store.orders[ord.ID].FailureReason, "amount mismatch")
	assert.Len(t, rec.Named(events.PaymentCompleted), 1)
}
