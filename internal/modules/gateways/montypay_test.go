package gateways

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

func TestMontyPaySignDeterministic(t *testing.T) {
	fields := map[string]string{
		"merchant_key": "mk-1",
		"order_number": "pay_5",
		"order_amount": "20.00",
	}
	a := montypaySign(fields, "secret")
	b := montypaySign(fields, "secret")
	assert.Equal(t, a, b)
	assert.Equal(t, 128, len(a)) // sha512 hex
	assert.Equal(t, strings.ToUpper(a), a)
	assert.NotEqual(t, a, montypaySign(fields, "other-secret"))
}

func montypayTestNotification(secret string, values url.Values) []byte {
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	values.Set("merchantSignature", montypaySign(fields, secret))
	return []byte(values.Encode())
}

func TestMontyPayWebhookVerified(t *testing.T) {
	c := NewMontyPayClient(MontyPayConfig{MerchantKey: "mk-1", Secret: "s3cr3t"}, slog.Default())

	body := montypayTestNotification("s3cr3t", url.Values{
		"order_number": {"pay_5"},
		"payment_id":   {"tok-881"},
		"status":       {"settled"},
	})

	res := c.HandleWebhook(body, http.Header{})
	assert.Equal(t, EventPayment, res.Event)
	assert.Equal(t, "pay_5", res.PaymentPublicID)
	assert.Equal(t, "tok-881", res.ProviderRef)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.True(t, res.Authoritative)
	assert.Equal(t, "montypay-tok-881-settled", res.EventID)
}

func TestMontyPayWebhookRejected(t *testing.T) {
	c := NewMontyPayClient(MontyPayConfig{MerchantKey: "mk-1", Secret: "s3cr3t"}, slog.Default())

	// wrong secret
	body := montypayTestNotification("wrong", url.Values{
		"order_number": {"pay_5"},
		"status":       {"settled"},
	})
	assert.Equal(t, EventUnknown, c.HandleWebhook(body, http.Header{}).Event)

	// missing signature
	assert.Equal(t, EventUnknown, c.HandleWebhook([]byte("order_number=pay_5&status=settled"), http.Header{}).Event)

	// tampered field after signing
	body = montypayTestNotification("s3cr3t", url.Values{
		"order_number": {"pay_5"},
		"status":       {"declined"},
	})
	tampered, _ := url.ParseQuery(string(body))
	tampered.Set("status", "settled")
	assert.Equal(t, EventUnknown, c.HandleWebhook([]byte(tampered.Encode()), http.Header{}).Event)
}

func TestMontyPayWebhookOutcomes(t *testing.T) {
	c := NewMontyPayClient(MontyPayConfig{MerchantKey: "mk-1", Secret: "s3cr3t"}, slog.Default())

	tests := []struct {
		status string
		want   Outcome
	}{
		{"settled", OutcomeConfirmed},
		{"success", OutcomeConfirmed},
		{"declined", OutcomeFailed},
		{"expired", OutcomeFailed},
		{"3ds", OutcomePending},
		{"pending", OutcomePending},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			body := montypayTestNotification("s3cr3t", url.Values{
				"order_number": {"pay_5"},
				"payment_id":   {"tok-1"},
				"status":       {tt.status},
			})
			res := c.HandleWebhook(body, http.Header{})
			require.Equal(t, EventPayment, res.Event)
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestMontyPayCreateSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/session", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "mk-1", payload["merchant_key"])
		assert.NotEmpty(t, payload["hash"])
		order := payload["order"].(map[string]any)
		assert.Equal(t, "pay_6", order["number"])
		assert.Equal(t, "25.00", order["amount"])

		json.NewEncoder(w).Encode(map[string]any{
			"redirect_url": "https://checkout.montypay.com/s/abc",
			"payment_id":   "tok-900",
		})
	}))
	defer srv.Close()

	c := NewMontyPayClient(MontyPayConfig{MerchantKey: "mk-1", Secret: "s", BaseURL: srv.URL}, slog.Default())
	res := c.CreateCheckout(context.Background(), CheckoutRequest{
		PaymentPublicID: "pay_6",
		Amount:          money.RequireFromString("25.00", "EUR"),
		Description:     "eSIM bundle",
	})

	require.True(t, res.OK)
	assert.False(t, res.Immediate)
	assert.Equal(t, "https://checkout.montypay.com/s/abc", res.CheckoutURL)
	assert.Equal(t, "tok-900", res.ProviderRef)
}

func TestMontyPayValidatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/payment/status", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "settled",
			"trans_id": "tr-17",
		})
	}))
	defer srv.Close()

	c := NewMontyPayClient(MontyPayConfig{MerchantKey: "mk-1", Secret: "s", BaseURL: srv.URL}, slog.Default())
	res := c.ValidatePayment(context.Background(), PaymentRef{PublicID: "pay_6"})
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.Equal(t, "tr-17", res.TransactionID)
}

// No refund API at this provider; the orchestrator surfaces this as a
// conflict instead of pretending the refund happened.
func TestMontyPayRefundUnsupported(t *testing.T) {
	c := NewMontyPayClient(MontyPayConfig{MerchantKey: "mk-1", Secret: "s"}, slog.Default())
	ok := c.Refund(context.Background(), PaymentRef{PublicID: "pay_6", ProviderRef: "tok-900"},
		money.RequireFromString("25.00", "EUR"), "customer request")
	assert.False(t, ok)
}
