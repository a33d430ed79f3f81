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
	"github.com/etnikbeqiri/esim-sub001/internal/modules/payments"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/apperr"
)

type RefundHandler struct {
	Logger  *slog.Logger
	Service *payments.RefundService
}

func NewRefundHandler(logger *slog.Logger, svc *payments.RefundService) *RefundHandler {
	return &RefundHandler{Logger: logger, Service: svc}
}

type refundInput struct {
	PaymentID      string `json:"payment_id" binding:"required,max=64"`
	Amount         string `json:"amount" binding:"omitempty,max=16"`
	Reason         string `json:"reason" binding:"omitempty,max=255"`
	ActorID        string `json:"actor_id" binding:"required,max=64"`
	IdempotencyKey string `json:"idempotency_key" binding:"required,min=8,max=64"`
}

// POST /api/admin/refunds
func (h *RefundHandler) Post(c *gin.Context) {
	var in refundInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fields := validation.FromBindError(err, &in)
		middleware.Fail(c, apperr.InvalidErr("invalid refund request", fields))
		return
	}

	amount := decimal.Zero
	if s := strings.TrimSpace(in.Amount); s != "" {
		var err error
		amount, err = decimal.NewFromString(s)
		if err != nil {
			middleware.Fail(c, apperr.InvalidErr("invalid refund request", map[string]string{
				"amount": "must be a decimal number",
			}))
			return
		}
	}

	res, err := h.Service.Refund(c.Request.Context(), payments.RefundInput{
		PaymentPublicID: in.PaymentID,
		Amount:          amount,
		Reason:          in.Reason,
		ActorID:         in.ActorID,
		IdempotencyKey:  in.IdempotencyKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, payments.ErrNotFound):
			middleware.Fail(c, apperr.NotFoundErr("payment not found"))
		case errors.Is(err, payments.ErrNotRefundable):
			middleware.Fail(c, apperr.ConflictErr("payment is not refundable"))
		case errors.Is(err, payments.ErrRefundTooLarge):
			middleware.Fail(c, apperr.InvalidErr("refund exceeds the paid amount", nil))
		case errors.Is(err, payments.ErrRefundUnsupported):
			// gateway cannot execute it; nothing changed
			middleware.Fail(c, apperr.ConflictErr("gateway does not support refunding this payment"))
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
		"refund_id": res.RefundID,
		"status":    res.Status,
		"amount":    res.Amount.StringFixed(2),
		"currency":  res.Currency,
	})
}
