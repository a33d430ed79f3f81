package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var ErrCurrencyMismatch = errors.New("currency mismatch")

// Amount is a currency-tagged fixed-point value. All internal money math
// happens on Amount; conversion to provider minor units (cents) happens only
// at the gateway protocol boundary.
type Amount struct {
	Value    decimal.Decimal
	Currency string
}

func New(value decimal.Decimal, currency string) Amount {
	return Amount{Value: value, Currency: currency}
}

func FromMinorUnits(minor int64, currency string) Amount {
	return Amount{Value: decimal.NewFromInt(minor).Div(decimal.NewFromInt(100)), Currency: currency}
}

func FromString(value, currency string) (Amount, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Amount{}, fmt.Errorf("parse amount %q: %w", value, err)
	}
	return Amount{Value: d, Currency: currency}, nil
}

// RequireFromString is for constants and tests where the input is known good.
func RequireFromString(value, currency string) Amount {
	a, err := FromString(value, currency)
	if err != nil {
		panic(err)
	}
	return a
}

func Zero(currency string) Amount {
	return Amount{Value: decimal.Zero, Currency: currency}
}

// MinorUnits returns the amount in the smallest currency unit (x100),
// rounded half-up to kill representation noise before truncation.
func (a Amount) MinorUnits() int64 {
	return a.Value.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (a Amount) Add(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, ErrCurrencyMismatch
	}
	return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency}, nil
}

func (a Amount) Sub(b Amount) (Amount, error) {
	if a.Currency != b.Currency {
		return Amount{}, ErrCurrencyMismatch
	}
	return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency}, nil
}

func (a Amount) Neg() Amount {
	return Amount{Value: a.Value.Neg(), Currency: a.Currency}
}

func (a Amount) IsZero() bool     { return a.Value.IsZero() }
func (a Amount) IsNegative() bool { return a.Value.IsNegative() }
func (a Amount) IsPositive() bool { return a.Value.IsPositive() }

func (a Amount) Cmp(b Amount) (int, error) {
	if a.Currency != b.Currency {
		return 0, ErrCurrencyMismatch
	}
	return a.Value.Cmp(b.Value), nil
}

func (a Amount) LessThan(b Amount) bool {
	c, err := a.Cmp(b)
	return err == nil && c < 0
}

func (a Amount) GreaterThan(b Amount) bool {
	c, err := a.Cmp(b)
	return err == nil && c > 0
}

// String renders the canonical machine form, e.g. "12.34 EUR".
func (a Amount) String() string {
	return a.Value.StringFixed(2) + " " + a.Currency
}

// Format biçimlendirilmiş kullanıcı görünümü döndürür.
func (a Amount) Format() string {
	major := a.Value.StringFixed(2)
	switch a.Currency {
	case "EUR":
		return "€" + major
	case "USD":
		return "$" + major
	case "TRY":
		return "₺" + major
	case "CHF":
		return "CHF " + major
	default:
		return major + " " + a.Currency
	}
}
