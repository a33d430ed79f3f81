package gateways

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

const payrexxDefaultBaseURL = "https://api.payrexx.com"

type PayrexxClient struct {
	cfg    PayrexxConfig
	http   *http.Client
	logger *slog.Logger
}

func NewPayrexxClient(cfg PayrexxConfig, logger *slog.Logger) *PayrexxClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = payrexxDefaultBaseURL
	}
	return &PayrexxClient{cfg: cfg, http: newHTTPClient(), logger: logger}
}

func (c *PayrexxClient) Name() Provider { return ProviderPayrexx }

// payrexxSign: base64(HMAC-SHA256(urlencoded sorted form, api secret)).
// The provider verifies this byte-for-byte, so the form must be encoded with
// sorted keys exactly as sent.
func payrexxSign(form url.Values, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(form.Encode())) // url.Values.Encode sorts keys
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type payrexxGateway struct {
	ID       int    `json:"id"`
	Status   string `json:"status"`
	Link     string `json:"link"`
	Invoices []struct {
		Transactions []struct {
			ID     int    `json:"id"`
			Status string `json:"status"`
		} `json:"transactions"`
	} `json:"invoices"`
	ReferenceID string `json:"referenceId"`
}

type payrexxResponse struct {
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Data    []payrexxGateway `json:"data"`
}

func (c *PayrexxClient) CreateCheckout(ctx context.Context, req CheckoutRequest) CheckoutResult {
	return c.createGateway(ctx, req.PaymentPublicID, req.Amount, req.Description, req.SuccessURL, req.CancelURL, req.FailURL)
}

func (c *PayrexxClient) CreateTopUp(ctx context.Context, req TopUpRequest) CheckoutResult {
	return c.createGateway(ctx, req.PaymentPublicID, req.Amount, "Balance top-up", req.SuccessURL, req.CancelURL, req.CancelURL)
}

func (c *PayrexxClient) createGateway(ctx context.Context, paymentID string, amount money.Amount, purpose, successURL, cancelURL, failURL string) CheckoutResult {
	if fail, ok := CheckMinimum(ProviderPayrexx, amount); !ok {
		return fail
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount.MinorUnits(), 10))
	form.Set("currency", amount.Currency)
	form.Set("purpose", purpose)
	form.Set("referenceId", paymentID)
	form.Set("successRedirectUrl", successURL)
	form.Set("cancelRedirectUrl", cancelURL)
	form.Set("failedRedirectUrl", failURL)
	form.Set("ApiSignature", payrexxSign(form, c.cfg.APISecret))

	var resp payrexxResponse
	if err := c.call(ctx, http.MethodPost, "/v1.0/Gateway/", form, &resp); err != nil {
		c.logger.Warn("payrexx gateway create failed", "payment", paymentID, "err", err)
		return CheckoutFailure(FailCommunication, "payment service temporarily unavailable")
	}
	if resp.Status != "success" || len(resp.Data) == 0 {
		c.logger.Warn("payrexx gateway create rejected", "payment", paymentID, "message", resp.Message)
		return CheckoutFailure(FailValidation, "payment could not be created, try another method")
	}

	gw := resp.Data[0]
	return CheckoutResult{
		OK:          true,
		CheckoutURL: gw.Link,
		ProviderRef: strconv.Itoa(gw.ID),
	}
}

func (c *PayrexxClient) ValidatePayment(ctx context.Context, ref PaymentRef) ValidationResult {
	if ref.ProviderRef == "" {
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "no_gateway"}
	}

	form := url.Values{}
	form.Set("ApiSignature", payrexxSign(url.Values{}, c.cfg.APISecret))

	var resp payrexxResponse
	if err := c.call(ctx, http.MethodGet, "/v1.0/Gateway/"+ref.ProviderRef+"/", form, &resp); err != nil {
		c.logger.Warn("payrexx gateway fetch failed", "gateway", ref.ProviderRef, "err", err)
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "fetch_error"}
	}
	if resp.Status != "success" || len(resp.Data) == 0 {
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "not_found"}
	}

	gw := resp.Data[0]
	switch gw.Status {
	case "confirmed":
		txID := ""
		for _, inv := range gw.Invoices {
			for _, tr := range inv.Transactions {
				if tr.Status == "confirmed" {
					txID = strconv.Itoa(tr.ID)
				}
			}
		}
		return ValidationResult{Outcome: OutcomeConfirmed, GatewayStatus: gw.Status, TransactionID: txID}
	case "cancelled", "declined", "expired", "error":
		return ValidationResult{Outcome: OutcomeFailed, GatewayStatus: gw.Status}
	default:
		// waiting, authorized, reserved, anything new: keep polling
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: gw.Status}
	}
}

func (c *PayrexxClient) Refund(ctx context.Context, ref PaymentRef, amount money.Amount, reason string) bool {
	res := c.ValidatePayment(ctx, ref)
	if res.Outcome != OutcomeConfirmed || res.TransactionID == "" {
		return false
	}

	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amount.MinorUnits(), 10))
	form.Set("ApiSignature", payrexxSign(form, c.cfg.APISecret))

	var resp payrexxResponse
	if err := c.call(ctx, http.MethodPost, "/v1.0/Transaction/"+res.TransactionID+"/refund/", form, &resp); err != nil {
		c.logger.Warn("payrexx refund failed", "transaction", res.TransactionID, "err", err)
		return false
	}
	return resp.Status == "success"
}

// Payrexx webhook relays are plain JSON without a body signature, so they
// are never authoritative: the orchestrator revalidates via the gateway
// endpoint before applying anything.
func (c *PayrexxClient) HandleWebhook(body []byte, header http.Header) WebhookResult {
	var payload struct {
		Transaction struct {
			ID          int    `json:"id"`
			Status      string `json:"status"`
			ReferenceID string `json:"referenceId"`
			Invoice     struct {
				PaymentRequestID int `json:"paymentRequestId"`
			} `json:"invoice"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Transaction.ReferenceID == "" {
		return WebhookUnknown()
	}

	outcome := OutcomePending
	switch payload.Transaction.Status {
	case "confirmed":
		outcome = OutcomeConfirmed
	case "cancelled", "declined", "expired", "error":
		outcome = OutcomeFailed
	}

	return WebhookResult{
		Event:           EventPayment,
		EventID:         fmt.Sprintf("payrexx-%d-%s", payload.Transaction.ID, payload.Transaction.Status),
		PaymentPublicID: payload.Transaction.ReferenceID,
		ProviderRef:     strconv.Itoa(payload.Transaction.Invoice.PaymentRequestID),
		Outcome:         outcome,
		GatewayStatus:   payload.Transaction.Status,
		Authoritative:   false,
	}
}

func (c *PayrexxClient) CanHandleCallback(q url.Values) bool {
	return c.cfg.GenericRedirect && HasGenericCallbackShape(q)
}

func (c *PayrexxClient) HandleCallback(q url.Values) (CallbackResult, bool) {
	if !c.CanHandleCallback(q) {
		return CallbackResult{}, false
	}
	return CallbackResult{
		PaymentPublicID: q.Get("payment_id"),
		ClaimedStatus:   q.Get("status"),
	}, true
}

func (c *PayrexxClient) call(ctx context.Context, method, path string, form url.Values, out any) error {
	endpoint := c.cfg.BaseURL + path + "?instance=" + url.QueryEscape(c.cfg.Instance)

	var body io.Reader
	if method != http.MethodGet {
		body = strings.NewReader(form.Encode())
	} else if enc := form.Encode(); enc != "" {
		endpoint += "&" + enc
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

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
		return fmt.Errorf("payrexx responded %d", res.StatusCode)
	}
	return json.Unmarshal(raw, out)
}
