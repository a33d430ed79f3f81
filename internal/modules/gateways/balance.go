package gateways

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/balance"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

// BalanceClient settles purchases against the customer's prepaid wallet.
// No redirect, no webhooks: a successful checkout reserves the funds and
// confirms immediately.
type BalanceClient struct {
	ledger *balance.Ledger
	logger *slog.Logger
}

func NewBalanceClient(ledger *balance.Ledger, logger *slog.Logger) *BalanceClient {
	return &BalanceClient{ledger: ledger, logger: logger}
}

func (c *BalanceClient) Name() Provider { return ProviderBalance }

func (c *BalanceClient) CreateCheckout(ctx context.Context, req CheckoutRequest) CheckoutResult {
	if fail, ok := CheckMinimum(ProviderBalance, req.Amount); !ok {
		return fail
	}
	if req.CustomerID == "" {
		return CheckoutFailure(FailValidation, "balance payment requires a customer account")
	}

	err := c.ledger.Reserve(ctx, req.CustomerID, req.Amount, req.OrderPublicID)
	switch {
	case errors.Is(err, balance.ErrInsufficientFunds):
		return CheckoutFailure(FailInsufficient, "insufficient balance")
	case errors.Is(err, balance.ErrCurrencyMismatch):
		return CheckoutFailure(FailValidation, "balance currency does not match order currency")
	case err != nil:
		c.logger.Error("balance reservation failed", "customer", req.CustomerID, "order", req.OrderPublicID, "err", err)
		return CheckoutFailure(FailCommunication, "payment service temporarily unavailable")
	}

	return CheckoutResult{OK: true, Immediate: true, ProviderRef: req.OrderPublicID}
}

// Topping up a wallet from the wallet itself is meaningless.
func (c *BalanceClient) CreateTopUp(ctx context.Context, req TopUpRequest) CheckoutResult {
	return CheckoutFailure(FailUnsupported, "balance cannot be topped up from balance")
}

// ValidatePayment answers from the ledger: a purchase entry for the order
// means the funds were captured, an open reservation means the payment is
// still in flight, anything else means it never reserved or was released.
func (c *BalanceClient) ValidatePayment(ctx context.Context, ref PaymentRef) ValidationResult {
	entries, err := c.ledger.Transactions(ctx, ref.CustomerID, 0)
	if err != nil {
		c.logger.Warn("balance validation: ledger read failed", "customer", ref.CustomerID, "err", err)
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "ledger_error"}
	}

	open := decimal.Zero
	for _, e := range entries {
		if e.OrderID == nil || *e.OrderID != ref.OrderID {
			continue
		}
		switch e.Type {
		case balance.TxPurchase:
			return ValidationResult{Outcome: OutcomeConfirmed, GatewayStatus: "captured", TransactionID: e.ID}
		case balance.TxReservation:
			open = open.Add(e.Amount)
		}
	}
	if open.IsPositive() {
		return ValidationResult{Outcome: OutcomePending, GatewayStatus: "reserved"}
	}
	return ValidationResult{Outcome: OutcomeFailed, GatewayStatus: "no_reservation"}
}

func (c *BalanceClient) Refund(ctx context.Context, ref PaymentRef, amount money.Amount, reason string) bool {
	if err := c.ledger.Refund(ctx, ref.CustomerID, amount, ref.PublicID, reason); err != nil {
		c.logger.Error("balance refund failed", "customer", ref.CustomerID, "payment", ref.PublicID, "err", err)
		return false
	}
	return true
}

func (c *BalanceClient) HandleWebhook(body []byte, header http.Header) WebhookResult {
	return WebhookUnknown()
}

func (c *BalanceClient) CanHandleCallback(q url.Values) bool { return false }

func (c *BalanceClient) HandleCallback(q url.Values) (CallbackResult, bool) {
	return CallbackResult{}, false
}
