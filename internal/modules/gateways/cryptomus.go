package gateways

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

const (
	cryptomusDefaultBaseURL = "https://api.cryptomus.com"

	// invoice lifetime in seconds; expired invoices come back as "cancel"
	cryptomusLifetime = 1800
)

type CryptomusClient struct {
	cfg    CryptomusConfig
	http   *http.Client
	logger *slog.Logger
}

func NewCryptomusClient(cfg CryptomusConfig, logger *slog.Logger) *CryptomusClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = cryptomusDefaultBaseURL
	}
	return &CryptomusClient{cfg: cfg, http: newHTTPClient(), logger: logger}
}

func (c *CryptomusClient) Name() Provider { return ProviderCryptomus }

// cryptomusSign: MD5(base64(body) + apiKey), hex encoded. Fixed by the
// provider; both requests and webhook payloads use it.
func cryptomusSign(body []byte, apiKey string) string {
	encoded := base64.StdEncoding.EncodeToString(body)
	sum := md5.Sum([]byte(encoded + apiKey))
	return hex.EncodeToString(sum[:])
}

type cryptomusInvoice struct {
	UUID          string `json:"uuid"`
	OrderID       string `json:"order_id"`
	Amount        string `json:"amount"`
	PaymentAmount string `json:"payment_amount"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"payment_status"`
	URL           string `json:"url"`
	IsFinal       bool   `json:"is_final"`
	TxID          string `json:"txid"`
}

type cryptomusResponse struct {
	State   int              `json:"state"`
	Message string           `json:"message"`
	Result  cryptomusInvoice `json:"result"`
}

func (c *CryptomusClient) CreateCheckout(ctx context.Context, req CheckoutRequest) CheckoutResult {
	return c.createInvoice(ctx, req.PaymentPublicID, req.Amount, req.SuccessURL, req.FailURL)
}

func (c *CryptomusClient) CreateTopUp(ctx context.Context, req TopUpRequest) CheckoutResult {
	return c.createInvoice(ctx, req.PaymentPublicID, req.Amount, req.SuccessURL, req.CancelURL)
}

func (c *CryptomusClient) createInvoice(ctx context.Context, paymentID string, amount money.Amount, successURL, failURL string) CheckoutResult {
	if fail, ok := CheckMinimum(ProviderCryptomus, amount); !ok {
		return fail
	}

	payload := map[string]any{
		"amount":      amount.Value.StringFixed(2),
		"currency":    amount.Currency,
		"order_id":    paymentID,
		"url_success": successURL,
		"url_return":  failURL,
		"lifetime":    cryptomusLifetime,
	}

	var resp cryptomusResponse
	if err := c.call(ctx, "/v1/payment", payload, &resp); err != nil {
		c.logger.Warn("cryptomus invoice create failed", "payment", paymentID, "err", err)
		return CheckoutFailure(FailCommunication, "payment service temporarily unavailable")
	}
	if resp.State != 0 || resp.Result.URL == "" {
		c.logger.Warn("cryptomus invoice create rejected", "payment", paymentID, "message", resp.Message)
		return CheckoutFailure(FailValidation, "payment could not be created, try another method")
	}

	return CheckoutResult{
		OK:          true,
		CheckoutURL: resp.Result.URL,
		ProviderRef: resp.Result.UUID,
	}
}

func (c *CryptomusClient) ValidatePayment(ctx context.Context, ref PaymentRef) ValidationResult {
	payload := map[string]any{}
	if ref.ProviderRef != "" {
		payload["uuid"] = ref.ProviderRef
	} else {
		payload["order_id"] = ref.PublicID
	}

	var resp cryptomusResponse
	if err := c.call(ctx, "/v1/payment/info", payload, &resp); err != nil {
		c.logger.Warn("cryptomus payment info failed", "payment", ref.PublicID, "err", err)
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "fetch_error"}
	}
	if resp.State != 0 {
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "not_found"}
	}
	return mapCryptomusStatus(resp.Result)
}

// mapCryptomusStatus folds the provider status vocabulary into the
// tri-state. paid_over confirms like paid: the customer sent more than
// asked, the discrepancy lands in metadata, confirmation is not blocked.
// wrong_amount (underpay) fails only once the invoice is final.
func mapCryptomusStatus(inv cryptomusInvoice) ValidationResult {
	meta := map[string]string{}
	if inv.PaymentAmount != "" && inv.PaymentAmount != inv.Amount {
		meta["invoice_amount"] = inv.Amount
		meta["paid_amount"] = inv.PaymentAmount
	}

	switch inv.PaymentStatus {
	case "paid", "paid_over":
		if inv.PaymentStatus == "paid_over" {
			meta["overpaid"] = "true"
		}
		return ValidationResult{
			Outcome:       OutcomeConfirmed,
			GatewayStatus: inv.PaymentStatus,
			TransactionID: inv.TxID,
			Metadata:      meta,
		}
	case "cancel", "fail", "system_fail", "refund_paid":
		return ValidationResult{Outcome: OutcomeFailed, GatewayStatus: inv.PaymentStatus, Metadata: meta}
	case "wrong_amount":
		if inv.IsFinal {
			return ValidationResult{Outcome: OutcomeFailed, GatewayStatus: inv.PaymentStatus, Metadata: meta}
		}
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: inv.PaymentStatus, Metadata: meta}
	default:
		// check, process, confirm_check, and whatever the provider adds next
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: inv.PaymentStatus, Metadata: meta}
	}
}

func (c *CryptomusClient) Refund(ctx context.Context, ref PaymentRef, amount money.Amount, reason string) bool {
	if ref.ProviderRef == "" {
		return false
	}
	payload := map[string]any{
		"uuid":        ref.ProviderRef,
		"amount":      amount.Value.StringFixed(2),
		"is_subtract": true,
	}

	var resp cryptomusResponse
	if err := c.call(ctx, "/v1/payment/refund", payload, &resp); err != nil {
		c.logger.Warn("cryptomus refund failed", "payment", ref.PublicID, "err", err)
		return false
	}
	return resp.State == 0
}

// HandleWebhook: the payload carries its own "sign" field computed over the
// remaining body with the API key, so a verified payload is authoritative.
func (c *CryptomusClient) HandleWebhook(body []byte, header http.Header) WebhookResult {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return WebhookUnknown()
	}

	sigRaw, ok := raw["sign"]
	if !ok {
		c.logger.Warn("cryptomus webhook without sign field")
		return WebhookUnknown()
	}
	var sig string
	if err := json.Unmarshal(sigRaw, &sig); err != nil {
		return WebhookUnknown()
	}

	delete(raw, "sign")
	unsigned, err := json.Marshal(raw) // map keys marshal sorted
	if err != nil {
		return WebhookUnknown()
	}
	expected := cryptomusSign(unsigned, c.cfg.APIKey)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(sig)) != 1 {
		c.logger.Warn("cryptomus webhook signature rejected")
		return WebhookUnknown()
	}

	var inv cryptomusInvoice
	if err := json.Unmarshal(body, &inv); err != nil || inv.OrderID == "" {
		return WebhookUnknown()
	}

	res := mapCryptomusStatus(inv)
	return WebhookResult{
		Event:           EventPayment,
		EventID:         fmt.Sprintf("cryptomus-%s-%s", inv.UUID, inv.PaymentStatus),
		PaymentPublicID: inv.OrderID,
		ProviderRef:     inv.UUID,
		Outcome:         res.Outcome,
		GatewayStatus:   res.GatewayStatus,
		Authoritative:   true,
		Data:            res.Metadata,
	}
}

// Cryptomus notifies by webhook only; it never claims browser callbacks.
func (c *CryptomusClient) CanHandleCallback(q url.Values) bool { return false }

func (c *CryptomusClient) HandleCallback(q url.Values) (CallbackResult, bool) {
	return CallbackResult{}, false
}

func (c *CryptomusClient) call(ctx context.Context, path string, payload map[string]any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", c.cfg.MerchantID)
	req.Header.Set("sign", cryptomusSign(body, c.cfg.APIKey))

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
		return fmt.Errorf("cryptomus responded %d", res.StatusCode)
	}
	return json.Unmarshal(raw, out)
}
