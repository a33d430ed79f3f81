package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/orders"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

type Service struct {
	db      *gorm.DB
	factory *gateways.Factory
	applier *Applier
	logger  *slog.Logger
}

func NewService(db *gorm.DB, factory *gateways.Factory, applier *Applier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, factory: factory, applier: applier, logger: logger}
}

type CreateCheckoutInput struct {
	OrderPublicID  string
	Provider       gateways.Provider
	IdempotencyKey string
	SuccessURL     string
	CancelURL      string
	FailURL        string
	Language       string
	CustomerEmail  string
}

type CreateCheckoutResult struct {
	PaymentPublicID string
	Status          string
	CheckoutURL     string
	ErrorCode       string
	ErrorMessage    string
	Idempotent      bool
}

// CreateCheckout drives phase one of a purchase: payment row + gateway
// session. Confirmation arrives later through webhooks or callbacks, except
// for the balance gateway which settles inline.
func (s *Service) CreateCheckout(ctx context.Context, in CreateCheckoutInput) (CreateCheckoutResult, error) {
	if in.OrderPublicID == "" || in.IdempotencyKey == "" {
		return CreateCheckoutResult{}, ErrOrderNotPayable
	}
	client, err := s.factory.Client(in.Provider)
	if err != nil {
		return CreateCheckoutResult{}, err
	}

	// Phase 1: order lock + status gate + idempotency + pending payment row.
	var p Payment
	var ord orders.Order
	var reused bool

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ord, err = orders.LockByPublicID(ctx, tx, in.OrderPublicID)
		if err != nil {
			return err
		}
		if !ord.Payable() {
			return ErrOrderNotPayable
		}
		if in.Provider == gateways.ProviderBalance && ord.CustomerID == nil {
			return ErrOrderNotPayable
		}

		var existing Payment
		e := tx.WithContext(ctx).
			First(&existing, "order_id = ? AND idempotency_key = ?", ord.ID, in.IdempotencyKey).Error
		if e == nil {
			p = existing
			reused = true
			return nil
		}
		if !errors.Is(e, gorm.ErrRecordNotFound) {
			return e
		}

		now := time.Now()
		p = Payment{
			ID:             uuid.NewString(),
			PublicID:       NewPublicID(),
			OrderID:        &ord.ID,
			CustomerID:     ord.CustomerID,
			Provider:       string(in.Provider),
			Type:           TypePurchase,
			Status:         StatusPending,
			Amount:         ord.TotalAmount,
			Currency:       ord.Currency,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.WithContext(ctx).Create(&p).Error
	})
	if err != nil {
		return CreateCheckoutResult{}, err
	}

	// Idempotent replay: hand back whatever the first call produced.
	if reused && p.Status != StatusPending {
		return resultFromPayment(p, true), nil
	}
	if reused && p.CheckoutURL != nil {
		return resultFromPayment(p, true), nil
	}

	// Phase 2: gateway call, outside any transaction.
	res := client.CreateCheckout(ctx, gateways.CheckoutRequest{
		PaymentPublicID: p.PublicID,
		OrderPublicID:   ord.PublicID,
		CustomerID:      p.customerID(),
		CustomerEmail:   in.CustomerEmail,
		Amount:          money.New(ord.TotalAmount, ord.Currency),
		Description:     ord.Description,
		SuccessURL:      in.SuccessURL,
		CancelURL:       in.CancelURL,
		FailURL:         in.FailURL,
		Language:        in.Language,
	})

	// Phase 3: persist the session or the failure.
	if !res.OK {
		if err := s.markCheckoutFailed(ctx, p.ID, res); err != nil {
			return CreateCheckoutResult{}, err
		}
		return CreateCheckoutResult{
			PaymentPublicID: p.PublicID,
			Status:          StatusFailed,
			ErrorCode:       res.ErrorCode,
			ErrorMessage:    res.ErrorMessage,
		}, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		updates := map[string]any{"updated_at": now}
		if res.ProviderRef != "" {
			updates["provider_ref"] = res.ProviderRef
		}
		if res.CheckoutURL != "" {
			updates["checkout_url"] = res.CheckoutURL
		}
		if len(res.Metadata) > 0 {
			updates["metadata"] = mergeMetadata(p.Metadata, res.Metadata)
		}
		if err := tx.WithContext(ctx).Model(&Payment{}).
			Where("id = ? AND status = ?", p.ID, StatusPending).
			Updates(updates).Error; err != nil {
			return err
		}

		ord2, err := orders.LockForUpdate(ctx, tx, ord.ID)
		if err != nil {
			return err
		}
		return orders.MarkAwaitingPayment(ctx, tx, ord2)
	})
	if err != nil {
		return CreateCheckoutResult{}, err
	}

	// Balance gateway settles synchronously: funds are reserved, run the
	// same idempotent confirmation the webhook path uses.
	if res.Immediate {
		sig := Signal{
			Outcome:       gateways.OutcomeConfirmed,
			GatewayStatus: "immediate",
			ProviderRef:   res.ProviderRef,
		}
		if err := s.applier.Apply(ctx, p.ID, sig); err != nil {
			return CreateCheckoutResult{}, err
		}
		return CreateCheckoutResult{PaymentPublicID: p.PublicID, Status: StatusCompleted}, nil
	}

	return CreateCheckoutResult{
		PaymentPublicID: p.PublicID,
		Status:          StatusPending,
		CheckoutURL:     res.CheckoutURL,
	}, nil
}

func (s *Service) markCheckoutFailed(ctx context.Context, paymentID string, res gateways.CheckoutResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		return tx.WithContext(ctx).Model(&Payment{}).
			Where("id = ? AND status = ?", paymentID, StatusPending).
			Updates(map[string]any{
				"status":        StatusFailed,
				"error_code":    res.ErrorCode,
				"error_message": truncate(res.ErrorMessage, 250),
				"updated_at":    now,
			}).Error
	})
}

// FailExpired is the entry point for the external expiry reconciler: a
// payment stuck in pending past its session window is failed explicitly.
// Idempotent like every terminal transition.
func (s *Service) FailExpired(ctx context.Context, paymentPublicID, reason string) error {
	p, err := s.ByPublicID(ctx, paymentPublicID)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "checkout session expired"
	}
	return s.applier.Apply(ctx, p.ID, Signal{
		Outcome:       gateways.OutcomeFailed,
		GatewayStatus: reason,
	})
}

func (s *Service) ByPublicID(ctx context.Context, publicID string) (Payment, error) {
	var p Payment
	err := s.db.WithContext(ctx).First(&p, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

func resultFromPayment(p Payment, idempotent bool) CreateCheckoutResult {
	out := CreateCheckoutResult{
		PaymentPublicID: p.PublicID,
		Status:          p.Status,
		Idempotent:      idempotent,
	}
	if p.CheckoutURL != nil {
		out.CheckoutURL = *p.CheckoutURL
	}
	if p.ErrorMessage != nil {
		out.ErrorMessage = *p.ErrorMessage
	}
	if p.ErrorCode != nil {
		out.ErrorCode = *p.ErrorCode
	}
	return out
}
