package topup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/currencies"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/customers"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/payments"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

var (
	ErrNotEligible     = errors.New("customer not eligible for top-up")
	ErrInvalidAmount   = errors.New("invalid top-up amount")
	ErrInvalidProvider = errors.New("provider cannot fund a wallet")
)

// Service creates wallet top-up checkout sessions. Confirmation arrives
// through the same webhook path as purchases; the payment row's type tells
// the applier to credit the ledger instead of closing a reservation.
type Service struct {
	db         *gorm.DB
	factory    *gateways.Factory
	customers  *customers.Repo
	currencies *currencies.Repo
	logger     *slog.Logger
}

func NewService(db *gorm.DB, factory *gateways.Factory, cust *customers.Repo, cur *currencies.Repo, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{db: db, factory: factory, customers: cust, currencies: cur, logger: logger}
}

type CreateTopUpInput struct {
	CustomerPublicID string
	Provider         string
	Amount           decimal.Decimal
	Currency         string
	SuccessURL       string
	CancelURL        string
	IdempotencyKey   string
}

type CreateTopUpResult struct {
	PaymentPublicID string
	Status          string
	CheckoutURL     string
	ErrorCode       string
	ErrorMessage    string
	Idempotent      bool
}

func (s *Service) CreateTopUp(ctx context.Context, in CreateTopUpInput) (CreateTopUpResult, error) {
	if !in.Amount.IsPositive() {
		return CreateTopUpResult{}, ErrInvalidAmount
	}

	provider, err := gateways.ParseProvider(in.Provider)
	if err != nil {
		return CreateTopUpResult{}, err
	}
	if provider == gateways.ProviderBalance {
		// the wallet cannot fund itself
		return CreateTopUpResult{}, ErrInvalidProvider
	}
	client, err := s.factory.Client(provider)
	if err != nil {
		return CreateTopUpResult{}, err
	}

	cust, err := s.customers.ByPublicID(ctx, in.CustomerPublicID)
	if err != nil {
		return CreateTopUpResult{}, err
	}
	if !cust.B2B {
		return CreateTopUpResult{}, ErrNotEligible
	}

	code := in.Currency
	if code == "" {
		code = currencies.DefaultCode
	}
	cur, err := s.currencies.ByCode(ctx, code)
	if err != nil {
		return CreateTopUpResult{}, err
	}
	amount := money.New(in.Amount, cur.Code)

	if fail, ok := gateways.CheckMinimum(provider, amount); !ok {
		return CreateTopUpResult{
			Status:       payments.StatusFailed,
			ErrorCode:    fail.ErrorCode,
			ErrorMessage: fail.ErrorMessage,
		}, nil
	}

	// Phase 1: idempotency + pending payment row.
	var p payments.Payment
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing payments.Payment
		e := tx.WithContext(ctx).
			First(&existing, "customer_id = ? AND idempotency_key = ?", cust.ID, in.IdempotencyKey).Error
		if e == nil {
			p = existing
			return nil
		}
		if !errors.Is(e, gorm.ErrRecordNotFound) {
			return e
		}

		now := time.Now()
		cid := cust.ID
		p = payments.Payment{
			ID:             uuid.NewString(),
			PublicID:       payments.NewPublicID(),
			CustomerID:     &cid,
			Provider:       string(provider),
			Type:           payments.TypeTopUp,
			Status:         payments.StatusPending,
			Amount:         amount.Value,
			Currency:       amount.Currency,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.WithContext(ctx).Create(&p).Error
	})
	if err != nil {
		return CreateTopUpResult{}, err
	}

	if p.Status != payments.StatusPending || p.CheckoutURL != nil {
		res := CreateTopUpResult{PaymentPublicID: p.PublicID, Status: p.Status, Idempotent: true}
		if p.CheckoutURL != nil {
			res.CheckoutURL = *p.CheckoutURL
		}
		if p.ErrorCode != nil {
			res.ErrorCode = *p.ErrorCode
		}
		return res, nil
	}

	// Phase 2: provider session, outside tx.
	res := client.CreateTopUp(ctx, gateways.TopUpRequest{
		PaymentPublicID: p.PublicID,
		CustomerID:      cust.ID,
		CustomerEmail:   cust.Email,
		Amount:          amount,
		SuccessURL:      in.SuccessURL,
		CancelURL:       in.CancelURL,
	})

	// Phase 3: persist the outcome.
	now := time.Now()
	if !res.OK {
		if err := s.db.WithContext(ctx).Model(&payments.Payment{}).
			Where("id = ? AND status = ?", p.ID, payments.StatusPending).
			Updates(map[string]any{
				"status":        payments.StatusFailed,
				"error_code":    res.ErrorCode,
				"error_message": res.ErrorMessage,
				"updated_at":    now,
			}).Error; err != nil {
			return CreateTopUpResult{}, err
		}
		s.logger.WarnContext(ctx, "top-up checkout refused",
			"payment", p.PublicID, "provider", provider, "code", res.ErrorCode)
		return CreateTopUpResult{
			PaymentPublicID: p.PublicID,
			Status:          payments.StatusFailed,
			ErrorCode:       res.ErrorCode,
			ErrorMessage:    res.ErrorMessage,
		}, nil
	}

	updates := map[string]any{"updated_at": now}
	if res.ProviderRef != "" {
		updates["provider_ref"] = res.ProviderRef
	}
	if res.CheckoutURL != "" {
		updates["checkout_url"] = res.CheckoutURL
	}
	if err := s.db.WithContext(ctx).Model(&payments.Payment{}).
		Where("id = ?", p.ID).Updates(updates).Error; err != nil {
		return CreateTopUpResult{}, err
	}

	s.logger.InfoContext(ctx, "top-up checkout created",
		"payment", p.PublicID, "provider", provider, "amount", amount.Format())
	return CreateTopUpResult{
		PaymentPublicID: p.PublicID,
		Status:          payments.StatusPending,
		CheckoutURL:     res.CheckoutURL,
	}, nil
}
