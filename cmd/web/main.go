package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/etnikbeqiri/esim-sub001/internal/events"
	apphttp "github.com/etnikbeqiri/esim-sub001/internal/http"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/balance"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/currencies"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/customers"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/payments"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/topup"
	"github.com/etnikbeqiri/esim-sub001/internal/storage"
)

func main() {
	// .env is optional; prod uses real env vars
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN environment variable is required")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	ctx := context.Background()

	var pub events.Publisher = events.Nop{}
	if broker := os.Getenv("KAFKA_BROKER"); broker != "" {
		topic := envOr("KAFKA_TOPIC", "payment-events")
		pub = events.NewKafkaPublisher(broker, topic, logger)
		defer pub.Close()
	}

	archive, err := storage.New(ctx, storage.Config{
		Driver:         envOr("ARCHIVE_DRIVER", "local"),
		LocalBaseDir:   os.Getenv("ARCHIVE_LOCAL_DIR"),
		LocalURLPrefix: os.Getenv("ARCHIVE_URL_PREFIX"),
		S3: storage.S3Config{
			Region:        os.Getenv("ARCHIVE_S3_REGION"),
			Bucket:        os.Getenv("ARCHIVE_S3_BUCKET"),
			Prefix:        os.Getenv("ARCHIVE_S3_PREFIX"),
			PublicBaseURL: os.Getenv("ARCHIVE_S3_PUBLIC_URL"),
		},
	})
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	logger.Info("webhook archive ready", "driver", archive.Driver)

	ledger := balance.NewLedger(balance.NewGormStore(db), pub, logger)

	gwCfg := gatewayConfigFromEnv()
	if err := gwCfg.Validate(); err != nil {
		log.Fatalf("gateway config invalid: %v", err)
	}
	factory, err := gateways.NewFactory(gwCfg, ledger, logger)
	if err != nil {
		log.Fatalf("gateway factory init failed: %v", err)
	}
	active := make([]string, 0, len(factory.Active()))
	for _, c := range factory.Active() {
		active = append(active, string(c.Name()))
	}
	logger.Info("payment gateways enabled", "providers", active)

	applier := payments.NewApplier(db, ledger, pub, logger)
	paySvc := payments.NewService(db, factory, applier, logger)
	refundSvc := payments.NewRefundService(db, factory, logger)
	webhookSvc := payments.NewWebhookService(db, factory, applier, archive.Storage, logger)

	callbackRouter := gateways.NewCallbackRouter(factory, logger)
	callbackSvc := payments.NewCallbackService(db, callbackRouter, applier,
		envOr("CALLBACK_SUCCESS_URL", "/payment/success"),
		envOr("CALLBACK_FAIL_URL", "/payment/failed"),
		logger)

	custRepo := customers.NewRepo(db)
	curRepo := currencies.NewRepo(db)
	topupSvc := topup.NewService(db, factory, custRepo, curRepo, logger)

	r := apphttp.NewRouter(apphttp.Deps{
		DB:         db,
		Logger:     logger,
		AdminToken: os.Getenv("ADMIN_API_TOKEN"),
		Payments:   paySvc,
		Refunds:    refundSvc,
		Webhooks:   webhookSvc,
		Callbacks:  callbackSvc,
		TopUps:     topupSvc,
		Ledger:     ledger,
		Customers:  custRepo,
	})

	addr := ":" + envOr("PORT", "8080")
	logger.Info("listening", "addr", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func gatewayConfigFromEnv() gateways.Config {
	return gateways.Config{
		Stripe: gateways.StripeConfig{
			Enabled:         os.Getenv("STRIPE_SECRET_KEY") != "",
			SecretKey:       os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:   os.Getenv("STRIPE_WEBHOOK_SECRET"),
			GenericRedirect: os.Getenv("STRIPE_GENERIC_REDIRECT") == "true",
		},
		Payrexx: gateways.PayrexxConfig{
			Enabled:         os.Getenv("PAYREXX_INSTANCE") != "",
			Instance:        os.Getenv("PAYREXX_INSTANCE"),
			APISecret:       os.Getenv("PAYREXX_API_SECRET"),
			BaseURL:         os.Getenv("PAYREXX_BASE_URL"),
			GenericRedirect: os.Getenv("PAYREXX_GENERIC_REDIRECT") == "true",
		},
		Cryptomus: gateways.CryptomusConfig{
			Enabled:    os.Getenv("CRYPTOMUS_MERCHANT_ID") != "",
			MerchantID: os.Getenv("CRYPTOMUS_MERCHANT_ID"),
			APIKey:     os.Getenv("CRYPTOMUS_API_KEY"),
			BaseURL:    os.Getenv("CRYPTOMUS_BASE_URL"),
		},
		MontyPay: gateways.MontyPayConfig{
			Enabled:     os.Getenv("MONTYPAY_MERCHANT_KEY") != "",
			MerchantKey: os.Getenv("MONTYPAY_MERCHANT_KEY"),
			Secret:      os.Getenv("MONTYPAY_SECRET"),
			BaseURL:     os.Getenv("MONTYPAY_BASE_URL"),
		},
		BalanceEnabled: os.Getenv("BALANCE_GATEWAY_DISABLED") != "true",
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
