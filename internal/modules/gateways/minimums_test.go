package gateways

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

func TestMinimumFor(t *testing.T) {
	assert.Equal(t, "0.50 EUR", MinimumFor(ProviderStripe, "EUR").String())
	assert.Equal(t, "0.30 GBP", MinimumFor(ProviderStripe, "GBP").String())
	assert.Equal(t, "1.00 USD", MinimumFor(ProviderMontyPay, "USD").String())
	assert.Equal(t, "0.01 EUR", MinimumFor(ProviderBalance, "EUR").String())

	// unlisted currency falls back to the default
	assert.Equal(t, "0.50 NOK", MinimumFor(ProviderCryptomus, "NOK").String())
}

func TestCheckMinimum(t *testing.T) {
	tests := []struct {
		name     string
		provider Provider
		amount   money.Amount
		ok       bool
	}{
		{"below", ProviderStripe, money.RequireFromString("0.49", "EUR"), false},
		{"exact", ProviderStripe, money.RequireFromString("0.50", "EUR"), true},
		{"above", ProviderStripe, money.RequireFromString("19.99", "EUR"), true},
		{"montypay below", ProviderMontyPay, money.RequireFromString("0.99", "USD"), false},
		{"balance cent", ProviderBalance, money.RequireFromString("0.01", "EUR"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := CheckMinimum(tt.provider, tt.amount)
			assert.Equal(t, tt.ok, ok)
			if !ok {
				assert.Equal(t, FailBelowMinimum, res.ErrorCode)
				assert.NotEmpty(t, res.ErrorMessage)
			}
		})
	}
}
