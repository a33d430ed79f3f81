package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/etnikbeqiri/esim-sub001/internal/http/middleware"
	"github.com/etnikbeqiri/esim-sub001/internal/http/validation"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/orders"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/payments"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/apperr"
)

type CheckoutHandler struct {
	Logger  *slog.Logger
	Service *payments.Service
}

func NewCheckoutHandler(logger *slog.Logger, svc *payments.Service) *CheckoutHandler {
	return &CheckoutHandler{Logger: logger, Service: svc}
}

type checkoutInput struct {
	OrderID        string `json:"order_id" binding:"required,max=64"`
	Provider       string `json:"provider" binding:"required,max=32"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,min=8,max=64"`
	SuccessURL     string `json:"success_url" binding:"omitempty,url,max=1024"`
	CancelURL      string `json:"cancel_url" binding:"omitempty,url,max=1024"`
	FailURL        string `json:"fail_url" binding:"omitempty,url,max=1024"`
	Language       string `json:"language" binding:"omitempty,len=2"`
	CustomerEmail  string `json:"customer_email" binding:"omitempty,email,max=255"`
}

// POST /api/checkout
func (h *CheckoutHandler) Post(c *gin.Context) {
	var in checkoutInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fields := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("invalid checkout request", fields))
		return
	}

	provider, err := gateways.ParseProvider(strings.ToLower(in.Provider))
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("unknown payment provider", map[string]string{
			"provider": "unsupported value",
		}))
		return
	}

	res, err := h.Service.CreateCheckout(c.Request.Context(), payments.CreateCheckoutInput{
		OrderPublicID:  in.OrderID,
		Provider:       provider,
		IdempotencyKey: in.IdempotencyKey,
		SuccessURL:     in.SuccessURL,
		CancelURL:      in.CancelURL,
		FailURL:        in.FailURL,
		Language:       in.Language,
		CustomerEmail:  in.CustomerEmail,
	})
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrNotFound):
			middleware.Fail(c, apperr.NotFoundErr("order not found"))
		case errors.Is(err, payments.ErrOrderNotPayable):
			middleware.Fail(c, apperr.ConflictErr("order is not payable"))
		case errors.Is(err, gateways.ErrUnknownProvider):
			middleware.Fail(c, apperr.InvalidErr("provider not enabled", nil))
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
