package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/etnikbeqiri/esim-sub001/internal/http/middleware"
	"github.com/etnikbeqiri/esim-sub001/internal/http/validation"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/balance"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/customers"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/apperr"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

type BalanceHandler struct {
	Logger    *slog.Logger
	Ledger    *balance.Ledger
	Customers *customers.Repo
}

func NewBalanceHandler(logger *slog.Logger, ledger *balance.Ledger, cust *customers.Repo) *BalanceHandler {
	return &BalanceHandler{Logger: logger, Ledger: ledger, Customers: cust}
}

func (h *BalanceHandler) resolveCustomer(c *gin.Context) (customers.Customer, bool) {
	cust, err := h.Customers.ByPublicID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, customers.ErrNotFound) {
			middleware.Fail(c, apperr.NotFoundErr("customer not found"))
		} else {
			middleware.Fail(c, apperr.Wrap(err))
		}
		return customers.Customer{}, false
	}
	return cust, true
}

// GET /api/customers/:id/balance
func (h *BalanceHandler) Get(c *gin.Context) {
	cust, ok := h.resolveCustomer(c)
	if !ok {
		return
	}

	b, err := h.Ledger.Balance(c.Request.Context(), cust.ID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"customer_id": cust.PublicID,
		"currency":    b.Currency,
		"balance":     b.Balance.StringFixed(2),
		"reserved":    b.Reserved.StringFixed(2),
		"available":   b.Balance.Sub(b.Reserved).StringFixed(2),
	})
}

// GET /api/customers/:id/transactions?limit=
func (h *BalanceHandler) Transactions(c *gin.Context) {
	cust, ok := h.resolveCustomer(c)
	if !ok {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			middleware.Fail(c, apperr.InvalidErr("invalid limit", map[string]string{
				"limit": "must be an integer between 1 and 500",
			}))
			return
		}
		limit = n
	}

	txs, err := h.Ledger.Transactions(c.Request.Context(), cust.ID, limit)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	out := make([]gin.H, 0, len(txs))
	for _, t := range txs {
		entry := gin.H{
			"id":             t.ID,
			"type":           t.Type,
			"amount":         t.Amount.StringFixed(2),
			"currency":       t.Currency,
			"balance_before": t.BalanceBefore.StringFixed(2),
			"balance_after":  t.BalanceAfter.StringFixed(2),
			"description":    t.Description,
			"created_at":     t.CreatedAt,
		}
		if t.OrderID != nil {
			entry["order_id"] = *t.OrderID
		}
		if t.PaymentID != nil {
			entry["payment_id"] = *t.PaymentID
		}
		out = append(out, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"customer_id":  cust.PublicID,
		"transactions": out,
	})
}

type adjustInput struct {
	CustomerID string `json:"customer_id" binding:"required,max=64"`
	Amount     string `json:"amount" binding:"required,max=16"`
	Currency   string `json:"currency" binding:"required,len=3"`
	Reason     string `json:"reason" binding:"required,min=4,max=255"`
}

// POST /api/admin/balance/adjust
// Positive amounts credit the wallet, negative amounts debit it. Both land
// in the ledger as regular entries so replay stays consistent.
func (h *BalanceHandler) Adjust(c *gin.Context) {
	var in adjustInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fields := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("invalid adjustment", fields))
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil || amount.IsZero() {
		middleware.Fail(c, apperr.InvalidErr("invalid adjustment", map[string]string{
			"amount": "must be a non-zero decimal number",
		}))
		return
	}

	cust, err := h.Customers.ByPublicID(c.Request.Context(), in.CustomerID)
	if err != nil {
		if errors.Is(err, customers.ErrNotFound) {
			middleware.Fail(c, apperr.NotFoundErr("customer not found"))
		} else {
			middleware.Fail(c, apperr.Wrap(err))
		}
		return
	}

	currency := strings.ToUpper(in.Currency)
	if amount.IsPositive() {
		err = h.Ledger.Refund(c.Request.Context(), cust.ID, money.New(amount, currency), "", "adjustment: "+in.Reason)
	} else {
		err = h.Ledger.DirectDeduct(c.Request.Context(), cust.ID, money.New(amount.Neg(), currency), "adjustment: "+in.Reason)
	}
	if err != nil {
		switch {
		case errors.Is(err, balance.ErrInsufficientFunds):
			middleware.Fail(c, apperr.ConflictErr("insufficient available balance"))
		case errors.Is(err, balance.ErrCurrencyMismatch), errors.Is(err, balance.ErrInvalidAmount):
			middleware.Fail(c, apperr.InvalidErr(err.Error(), nil))
		default:
			middleware.Fail(c, apperr.Wrap(err))
		}
		return
	}

	b, err := h.Ledger.Balance(c.Request.Context(), cust.ID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	h.Logger.Info("balance adjusted",
		"customer", cust.PublicID, "amount", amount.StringFixed(2), "currency", currency)
	c.JSON(http.StatusOK, gin.H{
		"customer_id": cust.PublicID,
		"currency":    b.Currency,
		"balance":     b.Balance.StringFixed(2),
		"reserved":    b.Reserved.StringFixed(2),
		"available":   b.Balance.Sub(b.Reserved).StringFixed(2),
	})
}
