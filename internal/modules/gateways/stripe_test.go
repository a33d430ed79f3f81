package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v74"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

// stripeSigHeader builds a Stripe-Signature header the way Stripe does:
// v1 = hex(HMAC-SHA256(secret, "<t>.<payload>")).
func stripeSigHeader(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeSessionEvent(eventType, paymentStatus string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_test_1",
		"object": "event",
		"api_version": %q,
		"type": %q,
		"data": {
			"object": {
				"id": "cs_test_1",
				"object": "checkout.session",
				"payment_status": %q,
				"client_reference_id": "pay_abc",
				"metadata": {"payment_id": "pay_abc"}
			}
		}
	}`, stripe.APIVersion, eventType, paymentStatus))
}

func TestStripeWebhookVerified(t *testing.T) {
	c := NewStripeClient(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"}, slog.Default())

	body := stripeSessionEvent("checkout.session.completed", "paid")
	header := http.Header{}
	header.Set("Stripe-Signature", stripeSigHeader(body, "whsec_test", time.Now()))

	res := c.HandleWebhook(body, header)
	assert.Equal(t, EventPayment, res.Event)
	assert.Equal(t, "evt_test_1", res.EventID)
	assert.Equal(t, "pay_abc", res.PaymentPublicID)
	assert.Equal(t, "cs_test_1", res.ProviderRef)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.True(t, res.Authoritative)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	c := NewStripeClient(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"}, slog.Default())
	body := stripeSessionEvent("checkout.session.completed", "paid")

	// wrong secret
	header := http.Header{}
	header.Set("Stripe-Signature", stripeSigHeader(body, "whsec_other", time.Now()))
	assert.Equal(t, EventUnknown, c.HandleWebhook(body, header).Event)

	// stale timestamp outside the tolerance window
	header.Set("Stripe-Signature", stripeSigHeader(body, "whsec_test", time.Now().Add(-time.Hour)))
	assert.Equal(t, EventUnknown, c.HandleWebhook(body, header).Event)

	// no header at all
	assert.Equal(t, EventUnknown, c.HandleWebhook(body, http.Header{}).Event)
}

func TestStripeWebhookOutcomes(t *testing.T) {
	c := NewStripeClient(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"}, slog.Default())

	tests := []struct {
		eventType     string
		paymentStatus string
		want          Outcome
	}{
		{"checkout.session.completed", "paid", OutcomeConfirmed},
		{"checkout.session.completed", "unpaid", OutcomePending},
		{"checkout.session.async_payment_succeeded", "paid", OutcomeConfirmed},
		{"checkout.session.expired", "unpaid", OutcomeFailed},
		{"checkout.session.async_payment_failed", "unpaid", OutcomeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.eventType+"/"+tt.paymentStatus, func(t *testing.T) {
			body := stripeSessionEvent(tt.eventType, tt.paymentStatus)
			header := http.Header{}
			header.Set("Stripe-Signature", stripeSigHeader(body, "whsec_test", time.Now()))

			res := c.HandleWebhook(body, header)
			assert.Equal(t, EventPayment, res.Event)
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestStripeWebhookIgnoresUnrelatedEvents(t *testing.T) {
	c := NewStripeClient(StripeConfig{SecretKey: "sk_test", WebhookSecret: "whsec_test"}, slog.Default())

	body := []byte(fmt.Sprintf(`{
		"id": "evt_test_2",
		"object": "event",
		"api_version": %q,
		"type": "invoice.paid",
		"data": {"object": {"id": "in_1"}}
	}`, stripe.APIVersion))
	header := http.Header{}
	header.Set("Stripe-Signature", stripeSigHeader(body, "whsec_test", time.Now()))

	res := c.HandleWebhook(body, header)
	assert.Equal(t, EventIgnored, res.Event)
	assert.Equal(t, "evt_test_2", res.EventID)
}

func TestStripeCallbackGatedByConfig(t *testing.T) {
	q, _ := url.ParseQuery("payment_id=pay_abc&status=success")

	c := NewStripeClient(StripeConfig{SecretKey: "sk_test"}, slog.Default())
	assert.False(t, c.CanHandleCallback(q))

	c = NewStripeClient(StripeConfig{SecretKey: "sk_test", GenericRedirect: true}, slog.Default())
	assert.True(t, c.CanHandleCallback(q))

	res, ok := c.HandleCallback(q)
	assert.True(t, ok)
	assert.Equal(t, "pay_abc", res.PaymentPublicID)
	assert.Equal(t, "success", res.ClaimedStatus)
}

func TestStripeFailureMapping(t *testing.T) {
	c := NewStripeClient(StripeConfig{SecretKey: "sk_test"}, slog.Default())

	res := c.failure(&stripe.Error{HTTPStatusCode: http.StatusUnauthorized, Msg: "Invalid API Key"})
	assert.Equal(t, FailConfiguration, res.ErrorCode)

	res = c.failure(&stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest, Msg: "missing currency"})
	assert.Equal(t, FailValidation, res.ErrorCode)

	res = c.failure(errors.New("connection reset"))
	assert.Equal(t, FailCommunication, res.ErrorCode)
}

func TestStripeCheckoutBelowMinimum(t *testing.T) {
	c := NewStripeClient(StripeConfig{SecretKey: "sk_test"}, slog.Default())
	res := c.CreateCheckout(context.Background(), CheckoutRequest{
		PaymentPublicID: "pay_abc",
		Amount:          money.RequireFromString("0.20", "EUR"),
	})
	assert.False(t, res.OK)
	assert.Equal(t, FailBelowMinimum, res.ErrorCode)
}
