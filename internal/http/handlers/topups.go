package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/etnikbeqiri/esim-sub001/internal/http/middleware"
	"github.com/etnikbeqiri/esim-sub001/internal/http/validation"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/currencies"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/customers"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/topup"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/apperr"
)

type TopUpHandler struct {
	Logger  *slog.Logger
	Service *topup.Service
}

func NewTopUpHandler(logger *slog.Logger, svc *topup.Service) *TopUpHandler {
	return &TopUpHandler{Logger: logger, Service: svc}
}

type topUpInput struct {
	CustomerID     string `json:"customer_id" binding:"required,max=64"`
	Provider       string `json:"provider" binding:"required,max=32"`
	Amount         string `json:"amount" binding:"required,max=16"`
	Currency       string `json:"currency" binding:"omitempty,len=3"`
	SuccessURL     string `json:"success_url" binding:"omitempty,url,max=1024"`
	CancelURL      string `json:"cancel_url" binding:"omitempty,url,max=1024"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,min=8,max=64"`
}

// POST /api/topups
func (h *TopUpHandler) Post(c *gin.Context) {
	var in topUpInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fields := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("invalid top-up request", fields))
		return
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("invalid top-up request", map[string]string{
			"amount": "must be a decimal number",
		}))
		return
	}

	res, err := h.Service.CreateTopUp(c.Request.Context(), topup.CreateTopUpInput{
		CustomerPublicID: in.CustomerID,
		Provider:         strings.ToLower(in.Provider),
		Amount:           amount,
		Currency:         in.Currency,
		SuccessURL:       in.SuccessURL,
		CancelURL:        in.CancelURL,
		IdempotencyKey:   in.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, customers.ErrNotFound):
			middleware.Fail(c, apperr.NotFoundErr("customer not found"))
		case errors.Is(err, topup.ErrNotEligible):
			middleware.Fail(c, apperr.ForbiddenErr("customer cannot top up a wallet"))
		case errors.Is(err, topup.ErrInvalidAmount), errors.Is(err, topup.ErrInvalidProvider),
			errors.Is(err, gateways.ErrUnknownProvider), errors.Is(err, currencies.ErrUnknownCurrency):
			middleware.Fail(c, apperr.InvalidErr(err.Error(), nil))
		default:
			middleware.Fail(c, apperr.Wrap(err))
		}
		return
	}

	status := http.StatusCreated
	if res.Idempotent {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"payment_id":    res.PaymentPublicID,
		"status":        res.Status,
		"checkout_url":  res.CheckoutURL,
		"error_code":    res.ErrorCode,
		"error_message": res.ErrorMessage,
	})
}
