package gateways

import (
	"fmt"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

// Provider-enforced minimum amounts per currency. Requests below the
// minimum fail fast before any network call.
var minimums = map[Provider]map[string]string{
	ProviderStripe: {
		"EUR": "0.50",
		"USD": "0.50",
		"CHF": "0.50",
		"GBP": "0.30",
	},
	ProviderPayrexx: {
		"EUR": "0.50",
		"CHF": "0.50",
	},
	ProviderCryptomus: {
		"EUR": "0.50",
		"USD": "0.50",
	},
	ProviderMontyPay: {
		"EUR": "1.00",
		"USD": "1.00",
	},
	ProviderBalance: {
		"EUR": "0.01",
		"USD": "0.01",
		"CHF": "0.01",
	},
}

// fallback for currencies without an explicit entry
const defaultMinimum = "0.50"

func MinimumFor(p Provider, currency string) money.Amount {
	if byCurrency, ok := minimums[p]; ok {
		if v, ok := byCurrency[currency]; ok {
			return money.RequireFromString(v, currency)
		}
	}
	return money.RequireFromString(defaultMinimum, currency)
}

// CheckMinimum returns a failure result when the amount is below the
// provider minimum, and ok=true otherwise.
func CheckMinimum(p Provider, amount money.Amount) (CheckoutResult, bool) {
	min := MinimumFor(p, amount.Currency)
	if amount.LessThan(min) {
		return CheckoutFailure(FailBelowMinimum,
			fmt.Sprintf("minimum amount for %s is %s", p, min.Format())), false
	}
	return CheckoutResult{}, true
}
