package gateways

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

func cryptomusTestBody(t *testing.T, apiKey string, fields map[string]any) []byte {
	t.Helper()
	unsigned, err := json.Marshal(fields)
	require.NoError(t, err)
	fields["sign"] = cryptomusSign(unsigned, apiKey)
	body, err := json.Marshal(fields)
	require.NoError(t, err)
	return body
}

func TestCryptomusWebhookVerified(t *testing.T) {
	c := NewCryptomusClient(CryptomusConfig{MerchantID: "m-1", APIKey: "topsecret"}, slog.Default())

	body := cryptomusTestBody(t, "topsecret", map[string]any{
		"uuid":           "inv-12",
		"order_id":       "pay_77",
		"amount":         "10.00",
		"payment_amount": "10.00",
		"payment_status": "paid",
		"is_final":       true,
		"txid":           "0xabc",
	})

	res := c.HandleWebhook(body, http.Header{})
	assert.Equal(t, EventPayment, res.Event)
	assert.Equal(t, "pay_77", res.PaymentPublicID)
	assert.Equal(t, "inv-12", res.ProviderRef)
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.True(t, res.Authoritative)
	assert.Equal(t, "cryptomus-inv-12-paid", res.EventID)
}

func TestCryptomusWebhookRejectsBadSignature(t *testing.T) {
	c := NewCryptomusClient(CryptomusConfig{MerchantID: "m-1", APIKey: "topsecret"}, slog.Default())

	// signed with the wrong key
	body := cryptomusTestBody(t, "wrongkey", map[string]any{
		"uuid":           "inv-12",
		"order_id":       "pay_77",
		"payment_status": "paid",
	})
	assert.Equal(t, EventUnknown, c.HandleWebhook(body, http.Header{}).Event)

	// no sign field at all
	assert.Equal(t, EventUnknown, c.HandleWebhook([]byte(`{"order_id":"pay_77","payment_status":"paid"}`), http.Header{}).Event)

	// not json
	assert.Equal(t, EventUnknown, c.HandleWebhook([]byte("status=paid"), http.Header{}).Event)
}

func TestCryptomusOverpaymentConfirms(t *testing.T) {
	c := NewCryptomusClient(CryptomusConfig{MerchantID: "m-1", APIKey: "topsecret"}, slog.Default())

	body := cryptomusTestBody(t, "topsecret", map[string]any{
		"uuid":           "inv-13",
		"order_id":       "pay_78",
		"amount":         "10.00",
		"payment_amount": "12.50",
		"payment_status": "paid_over",
		"is_final":       true,
	})

	res := c.HandleWebhook(body, http.Header{})
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.Equal(t, "true", res.Data["overpaid"])
	assert.Equal(t, "10.00", res.Data["invoice_amount"])
	assert.Equal(t, "12.50", res.Data["paid_amount"])
}

func TestMapCryptomusStatus(t *testing.T) {
	tests := []struct {
		status  string
		isFinal bool
		want    Outcome
	}{
		{"paid", true, OutcomeConfirmed},
		{"paid_over", true, OutcomeConfirmed},
		{"cancel", true, OutcomeFailed},
		{"fail", true, OutcomeFailed},
		{"system_fail", true, OutcomeFailed},
		{"refund_paid", true, OutcomeFailed},
		{"wrong_amount", false, OutcomePending},
		{"wrong_amount", true, OutcomeFailed},
		{"check", false, OutcomePending},
		{"process", false, OutcomePending},
		{"some_future_status", false, OutcomePending},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			res := mapCryptomusStatus(cryptomusInvoice{PaymentStatus: tt.status, IsFinal: tt.isFinal})
			assert.Equal(t, tt.want, res.Outcome)
			assert.Equal(t, tt.status, res.GatewayStatus)
		})
	}
}

func TestCryptomusCreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment", r.URL.Path)
		assert.Equal(t, "m-1", r.Header.Get("merchant"))
		assert.NotEmpty(t, r.Header.Get("sign"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "19.99", payload["amount"])
		assert.Equal(t, "EUR", payload["currency"])
		assert.Equal(t, "pay_99", payload["order_id"])

		json.NewEncoder(w).Encode(map[string]any{
			"state": 0,
			"result": map[string]any{
				"uuid": "inv-55",
				"url":  "https://pay.cryptomus.com/pay/inv-55",
			},
		})
	}))
	defer srv.Close()

	c := NewCryptomusClient(CryptomusConfig{MerchantID: "m-1", APIKey: "topsecret", BaseURL: srv.URL}, slog.Default())
	res := c.CreateCheckout(context.Background(), CheckoutRequest{
		PaymentPublicID: "pay_99",
		Amount:          money.RequireFromString("19.99", "EUR"),
		SuccessURL:      "https://shop.example/ok",
		FailURL:         "https://shop.example/fail",
	})

	require.True(t, res.OK)
	assert.Equal(t, "https://pay.cryptomus.com/pay/inv-55", res.CheckoutURL)
	assert.Equal(t, "inv-55", res.ProviderRef)
}

func TestCryptomusCreateInvoiceBelowMinimum(t *testing.T) {
	c := NewCryptomusClient(CryptomusConfig{MerchantID: "m-1", APIKey: "k"}, slog.Default())
	res := c.CreateCheckout(context.Background(), CheckoutRequest{
		PaymentPublicID: "pay_1",
		Amount:          money.RequireFromString("0.10", "EUR"),
	})
	assert.False(t, res.OK)
	assert.Equal(t, FailBelowMinimum, res.ErrorCode)
}

func TestCryptomusValidatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment/info", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "inv-55", payload["uuid"])

		json.NewEncoder(w).Encode(map[string]any{
			"state": 0,
			"result": map[string]any{
				"uuid":           "inv-55",
				"order_id":       "pay_99",
				"payment_status": "paid",
				"txid":           "0xfeed",
			},
		})
	}))
	defer srv.Close()

	c := NewCryptomusClient(CryptomusConfig{MerchantID: "m-1", APIKey: "k", BaseURL: srv.URL}, slog.Default())
	res := c.ValidatePayment(context.Background(), PaymentRef{PublicID: "pay_99", ProviderRef: "inv-55"})
	assert.Equal(t, OutcomeConfirmed, res.Outcome)
	assert.Equal(t, "0xfeed", res.TransactionID)
}

func TestCryptomusValidatePaymentDownstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCryptomusClient(CryptomusConfig{MerchantID: "m-1", APIKey: "k", BaseURL: srv.URL}, slog.Default())
	res := c.ValidatePayment(context.Background(), PaymentRef{PublicID: "pay_99", ProviderRef: "inv-55"})
	assert.Equal(t, OutcomePending, res.Outcome)
}
