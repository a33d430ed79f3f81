package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

// Refund tracks the refund action against a completed payment. The payment
// row itself only flips to refunded; amount/actor/reason live here.
type Refund struct {
	ID        string  `gorm:"type:char(36);primaryKey"`
	PaymentID string  `gorm:"type:char(36);not null;index:ix_refunds_payment_id"`
	OrderID   *string `gorm:"type:char(36);index:ix_refunds_order_id"`

	Provider    string  `gorm:"type:varchar(32);not null"`
	ProviderRef *string `gorm:"type:varchar(128)"`

	Status   string          `gorm:"type:varchar(16);not null"`
	Amount   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency string          `gorm:"type:char(3);not null"`

	IdempotencyKey string  `gorm:"type:varchar(64);not null;index:ix_refunds_idem"`
	ActorID        string  `gorm:"type:char(36);not null"`
	Reason         *string `gorm:"type:varchar(255)"`
	ErrorMessage   *string `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"type:datetime(3);not null"`
	UpdatedAt time.Time `gorm:"type:datetime(3);not null"`
}

func (Refund) TableName() string { return "refunds" }

const (
	RefundStatusInitiated = "initiated"
	RefundStatusSucceeded = "succeeded"
	RefundStatusFailed    = "failed"
)
