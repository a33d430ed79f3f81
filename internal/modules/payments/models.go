package payments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/etnikbeqiri/esim-sub001/internal/modules/gateways"
	"github.com/etnikbeqiri/esim-sub001/internal/modules/orders"
	"github.com/etnikbeqiri/esim-sub001/internal/shared/money"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusRefunded  = "refunded"
)

const (
	TypePurchase = "purchase"
	TypeTopUp    = "top_up"
)

type Payment struct {
	ID       string `gorm:"type:char(36);primaryKey"`
	PublicID string `gorm:"type:varchar(44);not null;uniqueIndex:ux_payments_public_id"`

	// OrderID set for purchases; CustomerID set for top-ups and balance
	// purchases.
	OrderID    *string `gorm:"type:char(36);index:ix_payments_order_id"`
	CustomerID *string `gorm:"type:char(36);index:ix_payments_customer_id"`

	Provider string `gorm:"type:varchar(32);not null"`
	Type     string `gorm:"type:varchar(16);not null"`
	Status   string `gorm:"type:varchar(16);not null"`

	Amount   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"type:char(3);not null"`

	ProviderRef *string        `gorm:"type:varchar(128);index:ix_payments_provider_ref"`
	CheckoutURL *string        `gorm:"type:varchar(1024)"`
	Metadata    datatypes.JSON `gorm:"type:json"`

	IdempotencyKey string  `gorm:"type:varchar(64);not null;index:ix_payments_idem"`
	ErrorMessage   *string `gorm:"type:varchar(255)"`
	ErrorCode      *string `gorm:"type:varchar(32)"`

	CreatedAt time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time  `gorm:"type:datetime(3);not null"`
	PaidAt    *time.Time `gorm:"type:datetime(3)"`
}

func (Payment) TableName() string { return "payments" }

// NewPublicID: the external-safe identifier gateways and customers see.
// Internal char(36) ids never leave the service.
func NewPublicID() string {
	return "pay_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (p Payment) Terminal() bool {
	switch p.Status {
	case StatusCompleted, StatusFailed, StatusRefunded:
		return true
	}
	return false
}

func (p Payment) Money() money.Amount {
	return money.New(p.Amount, p.Currency)
}

func (p Payment) providerRef() string {
	if p.ProviderRef == nil {
		return ""
	}
	return *p.ProviderRef
}

func (p Payment) customerID() string {
	if p.CustomerID == nil {
		return ""
	}
	return *p.CustomerID
}

// refFor builds the gateway-facing reference for a payment. Gateways and the
// balance ledger speak order public ids, so the internal char(36) order id is
// swapped for the public one here.
func refFor(ctx context.Context, db *gorm.DB, p Payment) gateways.PaymentRef {
	ref := gateways.PaymentRef{
		PublicID:    p.PublicID,
		ProviderRef: p.providerRef(),
		CustomerID:  p.customerID(),
		Type:        p.Type,
		Amount:      p.Money(),
	}
	if p.OrderID != nil {
		var o orders.Order
		if err := db.WithContext(ctx).Select("public_id").First(&o, "id = ?", *p.OrderID).Error; err == nil {
			ref.OrderID = o.PublicID
		}
	}
	return ref
}
