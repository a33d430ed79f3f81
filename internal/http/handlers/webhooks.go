package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/payments"
)

type WebhookHandler struct {
	Logger     *slog.Logger
	WebhookSvc *payments.WebhookService
}

func NewWebhookHandler(logger *slog.Logger, svc *payments.WebhookService) *WebhookHandler {
	return &WebhookHandler{Logger: logger, WebhookSvc: svc}
}

// POST /webhooks/:provider
// Raw body forwarded untouched; the gateway adapter verifies the signature.
func (h *WebhookHandler) Handle(c *gin.Context) {
	provider := c.Param("provider")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	err = h.WebhookSvc.Handle(c.Request.Context(), provider, body, c.Request.Header)
	if err != nil {
		// unverifiable bodies get a generic ack: nothing changed, and a
		// 4xx/5xx would only make the sender hammer us with retries
		if errors.Is(err, payments.ErrUnknownEvent) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		if errors.Is(err, gateways.ErrUnknownProvider) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "unknown provider"})
			return
		}

		// 500 => provider retries
		h.Logger.Error("webhook apply failed", "provider", provider, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
