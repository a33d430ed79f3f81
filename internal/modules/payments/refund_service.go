package payments

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

type RefundService struct {
	db      *gorm.DB
	factory *gateways.Factory
	logger  *slog.Logger
}

func NewRefundService(db *gorm.DB, factory *gateways.Factory, logger *slog.Logger) *RefundService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RefundService{db: db, factory: factory, logger: logger}
}

type RefundInput struct {
	PaymentPublicID string
	ActorID         string
	IdempotencyKey  string
	Amount          decimal.Decimal // zero => full amount
	Reason          string
}

type RefundResult struct {
	RefundID   string
	Status     string
	Amount     decimal.Decimal
	Currency   string
	Idempotent bool
}

// Refund moves a completed payment to refunded. The gateway answer is a
// capability fact: false means "no refund API or declined" and leaves the
// payment untouched.
func (s *RefundService) Refund(ctx context.Context, in RefundInput) (RefundResult, error) {
	if in.PaymentPublicID == "" || in.ActorID == "" || in.IdempotencyKey == "" {
		return RefundResult{}, ErrNotRefundable
	}

	// Phase 1: lock payment, gate status, idempotency, initiated row.
	var p Payment
	var ref Refund

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		p, err = lockPaymentByPublicID(ctx, tx, in.PaymentPublicID)
		if err != nil {
			return err
		}
		if p.Status != StatusCompleted {
			return ErrNotRefundable
		}

		amount := in.Amount
		if amount.IsZero() {
			amount = p.Amount
		}
		if amount.IsNegative() || amount.GreaterThan(p.Amount) {
			return ErrRefundTooLarge
		}

		var existing Refund
		e := tx.WithContext(ctx).
			First(&existing, "payment_id = ? AND idempotency_key = ?", p.ID, in.IdempotencyKey).Error
		if e == nil {
			ref = existing
			return nil
		}
		if !errors.Is(e, gorm.ErrRecordNotFound) {
			return e
		}

		now := time.Now()
		ref = Refund{
			ID:             uuid.NewString(),
			PaymentID:      p.ID,
			OrderID:        p.OrderID,
			Provider:       p.Provider,
			Status:         RefundStatusInitiated,
			Amount:         amount,
			Currency:       p.Currency,
			IdempotencyKey: in.IdempotencyKey,
			ActorID:        in.ActorID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if in.Reason != "" {
			r := in.Reason
			ref.Reason = &r
		}
		return tx.WithContext(ctx).Create(&ref).Error
	})
	if err != nil {
		return RefundResult{}, err
	}

	// idempotent replay
	if ref.Status != RefundStatusInitiated {
		return RefundResult{
			RefundID:   ref.ID,
			Status:     ref.Status,
			Amount:     ref.Amount,
			Currency:   ref.Currency,
			Idempotent: true,
		}, nil
	}

	client, err := s.factory.Client(gateways.Provider(p.Provider))
	if err != nil {
		return RefundResult{}, err
	}

	// Phase 2: gateway refund, outside tx.
	ok := client.Refund(ctx, refFor(ctx, s.db, p), money.New(ref.Amount, ref.Currency), in.Reason)

	// Phase 3: finalize.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if !ok {
			msg := "gateway refused or lacks refund support"
			if err := tx.WithContext(ctx).Model(&Refund{}).
				Where("id = ?", ref.ID).
				Updates(map[string]any{
					"status":        RefundStatusFailed,
					"error_message": msg,
					"updated_at":    now,
				}).Error; err != nil {
				return err
			}
			return nil
		}

		if err := tx.WithContext(ctx).Model(&Refund{}).
			Where("id = ?", ref.ID).
			Updates(map[string]any{
				"status":        RefundStatusSucceeded,
				"error_message": nil,
				"updated_at":    now,
			}).Error; err != nil {
			return err
		}

		// completed -> refunded, conditional so a concurrent refund of the
		// same payment cannot double-apply
		return tx.WithContext(ctx).Model(&Payment{}).
			Where("id = ? AND status = ?", p.ID, StatusCompleted).
			Updates(map[string]any{
				"status":     StatusRefunded,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return RefundResult{}, err
	}

	if !ok {
		s.logger.WarnContext(ctx, "refund not executed by gateway",
			"payment", p.PublicID, "provider", p.Provider)
		return RefundResult{
			RefundID: ref.ID,
			Status:   RefundStatusFailed,
			Amount:   ref.Amount,
			Currency: ref.Currency,
		}, ErrRefundUnsupported
	}

	s.logger.InfoContext(ctx, "payment refunded",
		"payment", p.PublicID, "provider", p.Provider, "amount", ref.Amount.StringFixed(2))
	return RefundResult{
		RefundID: ref.ID,
		Status:   RefundStatusSucceeded,
		Amount:   ref.Amount,
		Currency: ref.Currency,
	}, nil
}

func lockPaymentByPublicID(ctx context.Context, tx *gorm.DB, publicID string) (Payment, error) {
	var p Payment
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "public_id = ?", publicID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Payment{}, ErrNotFound
	}
	return p, err
}
