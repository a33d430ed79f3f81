package gateways

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

const montypayDefaultBaseURL = "https://checkout.montypay.com"

type MontyPayClient struct {
	cfg    MontyPayConfig
	http   *http.Client
	logger *slog.Logger
}

func NewMontyPayClient(cfg MontyPayConfig, logger *slog.Logger) *MontyPayClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = montypayDefaultBaseURL
	}
	return &MontyPayClient{cfg: cfg, http: newHTTPClient(), logger: logger}
}

func (c *MontyPayClient) Name() Provider { return ProviderMontyPay }

// montypaySign: uppercase hex of HMAC-SHA512 over the sorted
// "key=value&..." concatenation. Field ordering follows sorted keys — the
// provider recomputes the same string, so the order must match exactly.
func montypaySign(fields map[string]string, secret string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+fields[k])
	}

	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(strings.Join(parts, "&")))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

type montypayResponse struct {
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
	PaymentID   string `json:"payment_id"`
	TransID     string `json:"trans_id"`
	Reason      string `json:"reason"`
}

func (c *MontyPayClient) CreateCheckout(ctx context.Context, req CheckoutRequest) CheckoutResult {
	return c.createSession(ctx, req.PaymentPublicID, req.Amount, req.Description, req.SuccessURL, req.CancelURL)
}

func (c *MontyPayClient) CreateTopUp(ctx context.Context, req TopUpRequest) CheckoutResult {
	return c.createSession(ctx, req.PaymentPublicID, req.Amount, "Balance top-up", req.SuccessURL, req.CancelURL)
}

func (c *MontyPayClient) createSession(ctx context.Context, paymentID string, amount money.Amount, description, successURL, cancelURL string) CheckoutResult {
	if fail, ok := CheckMinimum(ProviderMontyPay, amount); !ok {
		return fail
	}

	fields := map[string]string{
		"merchant_key":      c.cfg.MerchantKey,
		"operation":         "purchase",
		"order_number":      paymentID,
		"order_amount":      amount.Value.StringFixed(2),
		"order_currency":    amount.Currency,
		"order_description": description,
		"success_url":       successURL,
		"cancel_url":        cancelURL,
	}

	payload := map[string]any{
		"merchant_key": c.cfg.MerchantKey,
		"operation":    "purchase",
		"order": map[string]string{
			"number":      paymentID,
			"amount":      amount.Value.StringFixed(2),
			"currency":    amount.Currency,
			"description": description,
		},
		"success_url": successURL,
		"cancel_url":  cancelURL,
		"hash":        montypaySign(fields, c.cfg.Secret),
	}

	var resp montypayResponse
	if err := c.call(ctx, "/api/v1/session", payload, &resp); err != nil {
		c.logger.Warn("montypay session create failed", "payment", paymentID, "err", err)
		return CheckoutFailure(FailCommunication, "payment service temporarily unavailable")
	}
	if resp.RedirectURL == "" {
		c.logger.Warn("montypay session create rejected", "payment", paymentID, "reason", resp.Reason)
		return CheckoutFailure(FailValidation, "payment could not be created, try another method")
	}

	return CheckoutResult{
		OK:          true,
		CheckoutURL: resp.RedirectURL,
		ProviderRef: resp.PaymentID,
	}
}

func (c *MontyPayClient) ValidatePayment(ctx context.Context, ref PaymentRef) ValidationResult {
	fields := map[string]string{
		"merchant_key": c.cfg.MerchantKey,
		"order_number": ref.PublicID,
	}
	payload := map[string]any{
		"merchant_key": c.cfg.MerchantKey,
		"order_number": ref.PublicID,
		"hash":         montypaySign(fields, c.cfg.Secret),
	}

	var resp montypayResponse
	if err := c.call(ctx, "/api/v1/payment/status", payload, &resp); err != nil {
		c.logger.Warn("montypay status fetch failed", "payment", ref.PublicID, "err", err)
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "fetch_error"}
	}

	switch strings.ToLower(resp.Status) {
	case "settled", "success":
		return ValidationResult{Outcome: OutcomeConfirmed, GatewayStatus: resp.Status, TransactionID: resp.TransID}
	case "declined", "fail", "expired", "cancelled":
		return ValidationResult{Outcome: OutcomeFailed, GatewayStatus: resp.Status}
	default:
		// pending, 3ds, redirect, unknown
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: resp.Status}
	}
}

// MontyPay exposes no refund API: this is a documented capability gap, so
// the answer is false, not an error.
func (c *MontyPayClient) Refund(ctx context.Context, ref PaymentRef, amount money.Amount, reason string) bool {
	return false
}

// HandleWebhook: form-encoded notification carrying merchantSignature over
// the remaining sorted fields. Verified payloads are authoritative.
func (c *MontyPayClient) HandleWebhook(body []byte, header http.Header) WebhookResult {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return WebhookUnknown()
	}

	sig := values.Get("merchantSignature")
	if sig == "" {
		c.logger.Warn("montypay webhook without merchantSignature")
		return WebhookUnknown()
	}

	fields := make(map[string]string, len(values))
	for k := range values {
		if k == "merchantSignature" {
			continue
		}
		fields[k] = values.Get(k)
	}
	expected := montypaySign(fields, c.cfg.Secret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		c.logger.Warn("montypay webhook signature rejected")
		return WebhookUnknown()
	}

	paymentID := values.Get("order_number")
	status := strings.ToLower(values.Get("status"))
	if paymentID == "" || status == "" {
		return WebhookUnknown()
	}

	outcome := OutcomePending
	switch status {
	case "settled", "success":
		outcome = OutcomeConfirmed
	case "declined", "fail", "expired", "cancelled":
		outcome = OutcomeFailed
	}

	return WebhookResult{
		Event:           EventPayment,
		EventID:         fmt.Sprintf("montypay-%s-%s", values.Get("payment_id"), status),
		PaymentPublicID: paymentID,
		ProviderRef:     values.Get("payment_id"),
		Outcome:         outcome,
		GatewayStatus:   status,
		Authoritative:   true,
	}
}

func (c *MontyPayClient) CanHandleCallback(q url.Values) bool { return false }

func (c *MontyPayClient) HandleCallback(q url.Values) (CallbackResult, bool) {
	return CallbackResult{}, false
}

func (c *MontyPayClient) call(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}
	if res.StatusCode >= 500 {
		return fmt.Errorf("montypay responded %d", res.StatusCode)
	}
	return json.Unmarshal(raw, out)
}
