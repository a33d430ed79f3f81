package gateways

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// All provider credentials arrive through these structs; clients never read
// the environment themselves.

type StripeConfig struct {
	Enabled       bool
	SecretKey     string
	WebhookSecret string

	// GenericRedirect: claim provider-less payment_id/status browser
	// callbacks. At most one enabled provider may set this (see Validate).
	GenericRedirect bool
}

type PayrexxConfig struct {
	Enabled         bool
	Instance        string
	APISecret       string
	BaseURL         string // default https://api.payrexx.com
	GenericRedirect bool
}

type CryptomusConfig struct {
	Enabled    bool
	MerchantID string
	APIKey     string
	BaseURL    string // default https://api.cryptomus.com
}

type MontyPayConfig struct {
	Enabled     bool
	MerchantKey string
	Secret      string
	BaseURL     string // default https://checkout.montypay.com
}

type Config struct {
	Stripe         StripeConfig
	Payrexx        PayrexxConfig
	Cryptomus      CryptomusConfig
	MontyPay       MontyPayConfig
	BalanceEnabled bool
}

var ErrAmbiguousCallbackRouting = errors.New("more than one generic-redirect gateway enabled")

// Validate rejects configurations the callback heuristic cannot
// disambiguate: two enabled providers sharing the generic payment_id/status
// redirect shape would be told apart only by priority order, which is a
// product decision we refuse to guess.
func (c Config) Validate() error {
	generic := 0
	if c.Stripe.Enabled && c.Stripe.GenericRedirect {
		generic++
	}
	if c.Payrexx.Enabled && c.Payrexx.GenericRedirect {
		generic++
	}
	if generic > 1 {
		return ErrAmbiguousCallbackRouting
	}

	if c.Stripe.Enabled && c.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe enabled without secret key")
	}
	if c.Payrexx.Enabled && (c.Payrexx.Instance == "" || c.Payrexx.APISecret == "") {
		return fmt.Errorf("payrexx enabled without instance/secret")
	}
	if c.Cryptomus.Enabled && (c.Cryptomus.MerchantID == "" || c.Cryptomus.APIKey == "") {
		return fmt.Errorf("cryptomus enabled without merchant/key")
	}
	if c.MontyPay.Enabled && (c.MontyPay.MerchantKey == "" || c.MontyPay.Secret == "") {
		return fmt.Errorf("montypay enabled without key/secret")
	}
	return nil
}

// gatewayTimeout bounds every provider HTTP call. A timeout is reported as a
// communication failure, never as success.
const gatewayTimeout = 30 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: gatewayTimeout}
}
