package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/etnikbeqiri/esim-sub001/internal/http/handlers"
	"github.com/etnikbeqiri/esim-sub001/internal/http/middleware"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/balance"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/customers"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/payments"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/topup"
)

// Deps collects everything the router wires into handlers. Construction
// happens in cmd/web; the router only arranges routes and middleware.
type Deps struct {
	DB         *gorm.DB
	Logger     *slog.Logger
	AdminToken string

	Payments  *payments.Service
	Refunds   *payments.RefundService
	Webhooks  *payments.WebhookService
	Callbacks *payments.CallbackService
	TopUps    *topup.Service
	Ledger    *balance.Ledger
	Customers *customers.Repo
}

func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.ErrorHandler(d.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := d.DB.DB()
		if err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	checkout := handlers.NewCheckoutHandler(d.Logger, d.Payments)
	topups := handlers.NewTopUpHandler(d.Logger, d.TopUps)
	webhooks := handlers.NewWebhookHandler(d.Logger, d.Webhooks)
	callback := handlers.NewCallbackHandler(d.Logger, d.Callbacks)
	refunds := handlers.NewRefundHandler(d.Logger, d.Refunds)
	bal := handlers.NewBalanceHandler(d.Logger, d.Ledger, d.Customers)

	api := r.Group("/api")
	{
		api.POST("/checkout", checkout.Post)
		api.POST("/topups", topups.Post)
		api.GET("/customers/:id/balance", bal.Get)
		api.GET("/customers/:id/transactions", bal.Transactions)

		admin := api.Group("/admin", middleware.RequireAdmin(d.AdminToken))
		{
			admin.POST("/refunds", refunds.Post)
			admin.POST("/balance/adjust", bal.Adjust)
		}
	}

	r.POST("/webhooks/:provider", webhooks.Handle)
	r.GET("/payments/callback", callback.Get)

	return r
}
