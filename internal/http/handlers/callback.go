package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/payments"
)

type CallbackHandler struct {
	Logger  *slog.Logger
	Service *payments.CallbackService
}

func NewCallbackHandler(logger *slog.Logger, svc *payments.CallbackService) *CallbackHandler {
	return &CallbackHandler{Logger: logger, Service: svc}
}

// GET /payments/callback
// Browser return leg. Query parameters are untrusted; the service
// revalidates against the gateway before deciding where to send the
// customer.
func (h *CallbackHandler) Get(c *gin.Context) {
	d := h.Service.Handle(c.Request.Context(), c.Request.URL.Query())

	h.Logger.Info("payment callback handled",
		"payment", d.PaymentPublicID, "status", d.Status)
	c.Redirect(http.StatusFound, d.RedirectURL)
}
