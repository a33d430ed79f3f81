package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending         = "pending"
	StatusAwaitingPayment = "awaiting_payment"
	StatusProcessing      = "processing"
	StatusCompleted       = "completed"
	StatusFailed          = "failed"
	StatusPendingRetry    = "pending_retry"
	StatusAdminReview     = "admin_review"
	StatusCancelled       = "cancelled"
)

// MaxRetries: payment failures route the order to pending_retry until this
// many attempts, then to failed.
const MaxRetries = 3

type Order struct {
	ID          string          `gorm:"type:char(36);primaryKey"`
	PublicID    string          `gorm:"type:varchar(40);not null;uniqueIndex:ux_orders_public_id"`
	CustomerID  *string         `gorm:"type:char(36);index:ix_orders_customer_id"`
	Status      string          `gorm:"type:varchar(32);not null"`
	TotalAmount decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency    string          `gorm:"type:char(3);not null"`
	Description string          `gorm:"type:varchar(255);not null"`

	RetryCount    int     `gorm:"not null;default:0"`
	FailureReason *string `gorm:"type:varchar(255)"`
	FailureCode   *string `gorm:"type:varchar(64)"`

	CreatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	UpdatedAt   time.Time  `gorm:"type:datetime(3);not null"`
	PaidAt      *time.Time `gorm:"type:datetime(3)"`
	CompletedAt *time.Time `gorm:"type:datetime(3)"`
}

func (Order) TableName() string { return "orders" }

// Payable: statuses from which a checkout may be created.
func (o Order) Payable() bool {
	switch o.Status {
	case StatusPending, StatusAwaitingPayment, StatusPendingRetry:
		return true
	}
	return false
}

func nextStatus(from, action string) (string, error) {
	switch action {
	case "await_payment":
		if from == StatusPending || from == StatusPendingRetry {
			return StatusAwaitingPayment, nil
		}
		if from == StatusAwaitingPayment {
			return StatusAwaitingPayment, nil
		}
		return "", ErrInvalidTransition
	case "process":
		if from == StatusPending || from == StatusAwaitingPayment || from == StatusPendingRetry {
			return StatusProcessing, nil
		}
		return "", ErrInvalidTransition
	case "complete":
		if from == StatusProcessing {
			return StatusCompleted, nil
		}
		return "", ErrInvalidTransition
	case "fail":
		switch from {
		case StatusPending, StatusAwaitingPayment, StatusPendingRetry, StatusProcessing:
			return StatusFailed, nil
		}
		return "", ErrInvalidTransition
	case "review":
		switch from {
		case StatusAwaitingPayment, StatusProcessing, StatusPendingRetry:
			return StatusAdminReview, nil
		}
		return "", ErrInvalidTransition
	case "cancel":
		if from == StatusPending || from == StatusAwaitingPayment {
			return StatusCancelled, nil
		}
		return "", ErrInvalidTransition
	default:
		return "", ErrInvalidTransition
	}
}
