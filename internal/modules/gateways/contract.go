package gateways

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

type Provider string

const (
	ProviderStripe    Provider = "stripe"
	ProviderPayrexx   Provider = "payrexx"
	ProviderCryptomus Provider = "cryptomus"
	ProviderMontyPay  Provider = "montypay"
	ProviderBalance   Provider = "balance"
)

var ErrUnknownProvider = errors.New("unknown payment provider")

func ParseProvider(s string) (Provider, error) {
	switch Provider(s) {
	case ProviderStripe, ProviderPayrexx, ProviderCryptomus, ProviderMontyPay, ProviderBalance:
		return Provider(s), nil
	}
	return "", ErrUnknownProvider
}

// PaymentRef carries everything a client needs to act on an existing
// payment without depending on the payments module.
type PaymentRef struct {
	PublicID    string
	ProviderRef string
	OrderID     string
	CustomerID  string
	Type        string // purchase | top_up
	Amount      money.Amount
}

// Client is the uniform contract over the heterogeneous provider APIs.
// Expected failure modes (below-minimum amounts, provider errors, timeouts)
// come back as failure-shaped results, never as panics; no provider-specific
// error type crosses this boundary.
type Client interface {
	Name() Provider

	// CreateCheckout opens a provider-side checkout session for an order.
	// Safe to call repeatedly for the same order; each call creates a fresh
	// session.
	CreateCheckout(ctx context.Context, req CheckoutRequest) CheckoutResult

	// CreateTopUp is the wallet-funding variant; line-item semantics differ
	// from order checkout so providers implement it separately.
	CreateTopUp(ctx context.Context, req TopUpRequest) CheckoutResult

	// ValidatePayment polls the provider (or the local ledger) for the real
	// payment state. Unknown provider statuses map to pending, never to
	// confirmed or failed.
	ValidatePayment(ctx context.Context, ref PaymentRef) ValidationResult

	// Refund is best-effort: false means the provider has no refund API or
	// declined — a capability fact, not an error.
	Refund(ctx context.Context, ref PaymentRef, amount money.Amount, reason string) bool

	// HandleWebhook verifies authenticity first; on verification failure it
	// returns EventUnknown so the caller can acknowledge without applying
	// any state change.
	HandleWebhook(body []byte, header http.Header) WebhookResult

	// CanHandleCallback / HandleCallback cover browser redirect returns that
	// carry no provider tag. Claims are heuristic (see CallbackRouter).
	CanHandleCallback(q url.Values) bool
	HandleCallback(q url.Values) (CallbackResult, bool)
}
