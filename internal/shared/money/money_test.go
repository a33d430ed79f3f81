package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinorUnits(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
	}{
		{"whole", "10.00", 1000},
		{"cents", "9.99", 999},
		{"single cent", "0.01", 1},
		{"three decimals rounds", "1.005", 101},
		{"zero", "0", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := RequireFromString(tt.in, "EUR")
			assert.Equal(t, tt.want, a.MinorUnits())
		})
	}
}

func TestFromMinorUnitsRoundTrip(t *testing.T) {
	a := FromMinorUnits(999, "EUR")
	assert.Equal(t, "9.99 EUR", a.String())
	assert.Equal(t, int64(999), a.MinorUnits())
}

func TestCurrencyMismatch(t *testing.T) {
	eur := RequireFromString("5.00", "EUR")
	usd := RequireFromString("5.00", "USD")

	_, err := eur.Add(usd)
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = eur.Sub(usd)
	require.ErrorIs(t, err, ErrCurrencyMismatch)

	_, err = eur.Cmp(usd)
	require.ErrorIs(t, err, ErrCurrencyMismatch)
}

func TestArithmetic(t *testing.T) {
	a := RequireFromString("100.00", "EUR")
	b := RequireFromString("49.50", "EUR")

	sum, err := a.Add(b)
	require.NoError(t, err)
	assert.True(t, sum.Value.Equal(decimal.RequireFromString("149.50")))

	diff, err := a.Sub(b)
	require.NoError(t, err)
	assert.True(t, diff.Value.Equal(decimal.RequireFromString("50.50")))

	assert.True(t, b.LessThan(a))
	assert.True(t, a.GreaterThan(b))
	assert.True(t, b.Neg().IsNegative())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "€9.99", RequireFromString("9.99", "EUR").Format())
	assert.Equal(t, "$20.00", RequireFromString("20", "USD").Format())
	assert.Equal(t, "CHF 12.50", RequireFromString("12.5", "CHF").Format())
	assert.Equal(t, "100.00 PLN", RequireFromString("100", "PLN").Format())
}
