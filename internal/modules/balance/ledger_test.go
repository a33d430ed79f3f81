package balance

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnikbeqiri/esim-sub001/internal/events"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

func newTestLedger() (*Ledger, *MemStore, *events.Recorder) {
	store := NewMemStore()
	rec := &events.Recorder{}
	return NewLedger(store, rec, nil), store, rec
}

func eur(s string) money.Amount { return money.RequireFromString(s, "EUR") }

func TestReserveAndDeduct(t *testing.T) {
	ctx := context.Background()
	l, _, rec := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("100.00"), "pay-topup"))

	// reserve 50 -> available 50
	require.NoError(t, l.Reserve(ctx, "cust-1", eur("50.00"), "order-1"))
	b, err := l.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.RequireFromString("100")))
	assert.True(t, b.Reserved.Equal(decimal.RequireFromString("50")))
	assert.True(t, b.Available().Equal(decimal.RequireFromString("50")))

	// second reserve of 60 would overdraw available
	err = l.Reserve(ctx, "cust-1", eur("60.00"), "order-2")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	// deduct the reservation -> balance 50, reserved 0
	require.NoError(t, l.DeductFromReservation(ctx, "cust-1", eur("50.00"), "order-1"))
	b, err = l.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.RequireFromString("50")))
	assert.True(t, b.Reserved.IsZero())

	assert.Len(t, rec.Named(events.BalanceReserved), 1)
	assert.Len(t, rec.Named(events.BalanceDeducted), 1)
}

func TestDeductWithoutReservation(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("100.00"), "pay-topup"))

	err := l.DeductFromReservation(ctx, "cust-1", eur("10.00"), "order-x")
	require.ErrorIs(t, err, ErrNoReservation)
}

func TestDoubleDeductRejected(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("100.00"), "pay-topup"))
	require.NoError(t, l.Reserve(ctx, "cust-1", eur("20.00"), "order-1"))
	require.NoError(t, l.DeductFromReservation(ctx, "cust-1", eur("20.00"), "order-1"))

	// reservation is consumed; a duplicate confirmation must not deduct again
	err := l.DeductFromReservation(ctx, "cust-1", eur("20.00"), "order-1")
	require.ErrorIs(t, err, ErrNoReservation)

	b, err := l.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.RequireFromString("80")))
}

func TestReleaseReservation(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("100.00"), "pay-topup"))
	require.NoError(t, l.Reserve(ctx, "cust-1", eur("30.00"), "order-1"))
	require.NoError(t, l.ReleaseReservation(ctx, "cust-1", eur("30.00"), "order-1"))

	b, err := l.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.RequireFromString("100")))
	assert.True(t, b.Reserved.IsZero())

	// nothing left to release
	err = l.ReleaseReservation(ctx, "cust-1", eur("30.00"), "order-1")
	require.ErrorIs(t, err, ErrNoReservation)
}

func TestDirectDeductOverdraftRejected(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("10.00"), "pay-topup"))

	err := l.DirectDeduct(ctx, "cust-1", eur("10.01"), "admin adjustment")
	require.ErrorIs(t, err, ErrInsufficientFunds)

	require.NoError(t, l.DirectDeduct(ctx, "cust-1", eur("10.00"), "admin adjustment"))
	b, _ := l.Balance(ctx, "cust-1")
	assert.True(t, b.Balance.IsZero())
}

func TestRefundSnapshots(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("50.00"), "pay-topup"))
	require.NoError(t, l.Refund(ctx, "cust-1", eur("20.00"), "pay-1", "order refund"))

	b, err := l.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.RequireFromString("70")))

	txs, err := l.Transactions(ctx, "cust-1", 10)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	refund := txs[0] // newest first
	assert.Equal(t, TxRefund, refund.Type)
	assert.True(t, refund.Amount.Equal(decimal.RequireFromString("20")))
	assert.True(t, refund.BalanceBefore.Equal(decimal.RequireFromString("50")))
	assert.True(t, refund.BalanceAfter.Equal(decimal.RequireFromString("70")))
	require.NotNil(t, refund.PaymentID)
	assert.Equal(t, "pay-1", *refund.PaymentID)
}

func TestReplayConsistency(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("100.00"), "p1"))
	require.NoError(t, l.Reserve(ctx, "cust-1", eur("40.00"), "o1"))
	require.NoError(t, l.DeductFromReservation(ctx, "cust-1", eur("40.00"), "o1"))
	require.NoError(t, l.Refund(ctx, "cust-1", eur("15.00"), "p2", ""))
	require.NoError(t, l.DirectDeduct(ctx, "cust-1", eur("5.00"), "fee"))

	d, err := l.Recompute(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, d.InSync(), "stored=%s recomputed=%s", d.Stored, d.Recomputed)
	assert.True(t, d.Stored.Equal(decimal.RequireFromString("70")))
}

func TestCurrencyMismatchRejected(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("10.00"), "p1"))
	err := l.TopUp(ctx, "cust-1", money.RequireFromString("10.00", "USD"), "p2")
	require.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestNonPositiveAmountsRejected(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	zero := money.Zero("EUR")
	assert.ErrorIs(t, l.TopUp(ctx, "c", zero, "p"), ErrInvalidAmount)
	assert.ErrorIs(t, l.Reserve(ctx, "c", zero, "o"), ErrInvalidAmount)
	assert.ErrorIs(t, l.DirectDeduct(ctx, "c", zero, ""), ErrInvalidAmount)
	assert.ErrorIs(t, l.Refund(ctx, "c", zero, "p", ""), ErrInvalidAmount)
}

// Concurrent reservations must never push available below zero.
func TestConcurrentReservationsNoOverdraft(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLedger()

	require.NoError(t, l.TopUp(ctx, "cust-1", eur("100.00"), "p1"))

	const workers = 20
	var wg sync.WaitGroup
	succeeded := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			orderID := fmt.Sprintf("order-%d", n)
			if err := l.Reserve(ctx, "cust-1", eur("30.00"), orderID); err == nil {
				succeeded <- orderID
			}
		}(i)
	}
	wg.Wait()
	close(succeeded)

	var wins int
	for range succeeded {
		wins++
	}
	// 100 / 30 => at most 3 reservations fit
	assert.Equal(t, 3, wins)

	b, err := l.Balance(ctx, "cust-1")
	require.NoError(t, err)
	assert.False(t, b.Available().IsNegative())
	assert.True(t, b.Reserved.Equal(decimal.RequireFromString("90")))
}
