package gateways

import "github.com/etnikbeqiri/esim-sub001/internal/shared/money"

// Failure codes carried on CheckoutResult.
const (
	FailBelowMinimum  = "below_minimum"
	FailValidation    = "validation"
	FailConfiguration = "configuration"
	FailCommunication = "communication"
	FailInsufficient  = "insufficient_funds"
	FailUnsupported   = "unsupported"
)

type CheckoutRequest struct {
	PaymentPublicID string
	OrderPublicID   string
	CustomerID      string
	CustomerEmail   string
	Amount          money.Amount
	Description     string
	SuccessURL      string
	CancelURL       string
	FailURL         string
	Language        string
}

type TopUpRequest struct {
	PaymentPublicID string
	CustomerID      string
	CustomerEmail   string
	Amount          money.Amount
	SuccessURL      string
	CancelURL       string
	Language        string
}

type CheckoutResult struct {
	OK bool

	// Immediate: confirmed synchronously with no customer redirect
	// (balance gateway).
	Immediate bool

	CheckoutURL string
	ProviderRef string
	Metadata    map[string]string

	ErrorCode    string
	ErrorMessage string
}

func CheckoutFailure(code, message string) CheckoutResult {
	return CheckoutResult{ErrorCode: code, ErrorMessage: message}
}

type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

type ValidationResult struct {
	Outcome       Outcome
	GatewayStatus string
	// TransactionID: provider-side transaction id for reconciliation;
	// set only when confirmed.
	TransactionID string
	Metadata      map[string]string
}

// Webhook event classes. EventUnknown means the signature did not verify —
// nothing in the payload may be trusted. EventIgnored is a verified payload
// for an event type we deliberately do not act on.
const (
	EventPayment = "payment"
	EventIgnored = "ignored"
	EventUnknown = "unknown"
)

type WebhookResult struct {
	Event   string
	EventID string

	PaymentPublicID string
	ProviderRef     string

	Outcome       Outcome
	GatewayStatus string

	// Authoritative: the payload itself was cryptographically signed and
	// self-describing; the orchestrator may apply it without a validation
	// round-trip.
	Authoritative bool

	Data map[string]string
}

func WebhookUnknown() WebhookResult { return WebhookResult{Event: EventUnknown} }

// CallbackResult is an unauthenticated browser hint; the orchestrator always
// revalidates with the provider before acting on it.
type CallbackResult struct {
	PaymentPublicID string
	ClaimedStatus   string
}
