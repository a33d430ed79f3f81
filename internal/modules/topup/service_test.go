package topup

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTopUpRejectsNonPositiveAmount(t *testing.T) {
	s := NewService(nil, nil, nil, nil, nil)

	for _, raw := range []string{"0", "-5.00"} {
		_, err := s.CreateTopUp(context.Background(), CreateTopUpInput{
			CustomerPublicID: "cus_1",
			Provider:         "stripe",
			Amount:           decimal.RequireFromString(raw),
		})
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestCreateTopUpRejectsUnknownProvider(t *testing.T) {
	s := NewService(nil, nil, nil, nil, nil)

	_, err := s.CreateTopUp(context.Background(), CreateTopUpInput{
		CustomerPublicID: "cus_1",
		Provider:         "paypal",
		Amount:           decimal.RequireFromString("20.00"),
	})
	require.Error(t, err)
}

func TestCreateTopUpRejectsBalanceProvider(t *testing.T) {
	s := NewService(nil, nil, nil, nil, nil)

	_, err := s.CreateTopUp(context.Background(), CreateTopUpInput{
		CustomerPublicID: "cus_1",
		Provider:         "balance",
		Amount:           decimal.RequireFromString("20.00"),
	})
	assert.ErrorIs(t, err, ErrInvalidProvider)
}
