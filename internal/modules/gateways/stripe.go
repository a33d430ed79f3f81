package gateways

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v74"
	stripeclient "github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

// checkout sessions expire after this window; the external reconciler fails
// orders stuck past it
const stripeSessionLifetime = 30 * time.Minute

type StripeClient struct {
	cfg    StripeConfig
	api    *stripeclient.API
	logger *slog.Logger
}

func NewStripeClient(cfg StripeConfig, logger *slog.Logger) *StripeClient {
	api := &stripeclient.API{}
	api.Init(cfg.SecretKey, nil)
	return &StripeClient{cfg: cfg, api: api, logger: logger}
}

func (c *StripeClient) Name() Provider { return ProviderStripe }

func (c *StripeClient) CreateCheckout(ctx context.Context, req CheckoutRequest) CheckoutResult {
	return c.createSession(ctx, req.PaymentPublicID, req.Amount, req.Description, req.SuccessURL, req.CancelURL, req.Language)
}

func (c *StripeClient) CreateTopUp(ctx context.Context, req TopUpRequest) CheckoutResult {
	return c.createSession(ctx, req.PaymentPublicID, req.Amount, "Balance top-up", req.SuccessURL, req.CancelURL, req.Language)
}

func (c *StripeClient) createSession(ctx context.Context, paymentID string, amount money.Amount, description, successURL, cancelURL, language string) CheckoutResult {
	if fail, ok := CheckMinimum(ProviderStripe, amount); !ok {
		return fail
	}

	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(paymentID),
		ExpiresAt:         stripe.Int64(time.Now().Add(stripeSessionLifetime).Unix()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(amount.Currency)),
				UnitAmount: stripe.Int64(amount.MinorUnits()),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(description),
				},
			},
		}},
	}
	if language != "" {
		params.Locale = stripe.String(language)
	}
	params.AddMetadata("payment_id", paymentID)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return c.failure(err)
	}

	return CheckoutResult{
		OK:          true,
		CheckoutURL: sess.URL,
		ProviderRef: sess.ID,
	}
}

func (c *StripeClient) ValidatePayment(ctx context.Context, ref PaymentRef) ValidationResult {
	if ref.ProviderRef == "" {
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "no_session"}
	}

	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("payment_intent")

	sess, err := c.api.CheckoutSessions.Get(ref.ProviderRef, params)
	if err != nil {
		// transient: never guess a terminal state from a failed poll
		c.logger.Warn("stripe session fetch failed", "session", ref.ProviderRef, "err", err)
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "fetch_error"}
	}

	switch {
	case sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		txID := sess.ID
		if sess.PaymentIntent != nil {
			txID = sess.PaymentIntent.ID
		}
		return ValidationResult{
			Outcome:       OutcomeConfirmed,
			GatewayStatus: string(sess.PaymentStatus),
			TransactionID: txID,
		}
	case sess.Status == stripe.CheckoutSessionStatusExpired:
		return ValidationResult{Outcome: OutcomeFailed, GatewayStatus: string(sess.Status)}
	default:
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: string(sess.PaymentStatus)}
	}
}

func (c *StripeClient) Refund(ctx context.Context, ref PaymentRef, amount money.Amount, reason string) bool {
	if ref.ProviderRef == "" {
		return false
	}

	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("payment_intent")
	sess, err := c.api.CheckoutSessions.Get(ref.ProviderRef, params)
	if err != nil || sess.PaymentIntent == nil {
		c.logger.Warn("stripe refund: session lookup failed", "session", ref.ProviderRef, "err", err)
		return false
	}

	refundParams := &stripe.RefundParams{
		Params:        stripe.Params{Context: ctx},
		PaymentIntent: stripe.String(sess.PaymentIntent.ID),
		Amount:        stripe.Int64(amount.MinorUnits()),
	}
	if reason != "" {
		refundParams.Reason = stripe.String(string(stripe.RefundReasonRequestedByCustomer))
	}

	if _, err := c.api.Refunds.New(refundParams); err != nil {
		c.logger.Warn("stripe refund failed", "session", ref.ProviderRef, "err", err)
		return false
	}
	return true
}

// HandleWebhook: Stripe signs the raw body (t=...,v1=hmac_sha256). A signed
// checkout.session payload is self-describing, so it is authoritative.
func (c *StripeClient) HandleWebhook(body []byte, header http.Header) WebhookResult {
	event, err := webhook.ConstructEvent(body, header.Get("Stripe-Signature"), c.cfg.WebhookSecret)
	if err != nil {
		c.logger.Warn("stripe webhook signature rejected", "err", err)
		return WebhookUnknown()
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired",
		"checkout.session.async_payment_succeeded", "checkout.session.async_payment_failed":
	default:
		return WebhookResult{Event: EventIgnored, EventID: event.ID}
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		c.logger.Warn("stripe webhook payload unparseable", "event", event.ID, "err", err)
		return WebhookResult{Event: EventIgnored, EventID: event.ID}
	}

	paymentID := sess.Metadata["payment_id"]
	if paymentID == "" {
		paymentID = sess.ClientReferenceID
	}

	outcome := OutcomePending
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		if sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			outcome = OutcomeConfirmed
		}
	case "checkout.session.expired", "checkout.session.async_payment_failed":
		outcome = OutcomeFailed
	}

	return WebhookResult{
		Event:           EventPayment,
		EventID:         event.ID,
		PaymentPublicID: paymentID,
		ProviderRef:     sess.ID,
		Outcome:         outcome,
		GatewayStatus:   string(event.Type),
		Authoritative:   true,
	}
}

func (c *StripeClient) CanHandleCallback(q url.Values) bool {
	return c.cfg.GenericRedirect && HasGenericCallbackShape(q)
}

func (c *StripeClient) HandleCallback(q url.Values) (CallbackResult, bool) {
	if !c.CanHandleCallback(q) {
		return CallbackResult{}, false
	}
	return CallbackResult{
		PaymentPublicID: q.Get("payment_id"),
		ClaimedStatus:   q.Get("status"),
	}, true
}

func (c *StripeClient) failure(err error) CheckoutResult {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		c.logger.Warn("stripe checkout failed", "code", stripeErr.Code, "err", stripeErr.Msg)
		// bad API key: stripe reports it as a 401, not a distinct error type
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			return CheckoutFailure(FailConfiguration, "payment service unavailable")
		}
		if stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			return CheckoutFailure(FailValidation, "payment could not be created, try another method")
		}
	} else {
		c.logger.Warn("stripe checkout failed", "err", err)
	}
	return CheckoutFailure(FailCommunication, "payment service temporarily unavailable")
}
