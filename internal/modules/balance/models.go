package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction types. Reservation entries move earmarked funds only; the
// stored balance is reproducible as the signed sum of all non-reservation
// entries (replay consistency).
const (
	TxReservation = "reservation"
	TxPurchase    = "purchase"
	TxTopUp       = "top_up"
	TxRefund      = "refund"
)

type CustomerBalance struct {
	CustomerID string          `gorm:"type:char(36);primaryKey"`
	Currency   string          `gorm:"type:char(3);not null"`
	Balance    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Reserved   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	UpdatedAt  time.Time       `gorm:"type:datetime(3);not null"`
}

func (CustomerBalance) TableName() string { return "customer_balances" }

// Available: balance minus in-flight reservations. Never negative.
func (b CustomerBalance) Available() decimal.Decimal {
	return b.Balance.Sub(b.Reserved)
}

type Transaction struct {
	ID            string          `gorm:"type:char(36);primaryKey"`
	CustomerID    string          `gorm:"type:char(36);not null;index:ix_balance_tx_customer_created,priority:1"`
	Type          string          `gorm:"type:varchar(16);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Currency      string          `gorm:"type:char(3);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	OrderID       *string         `gorm:"type:char(36);index:ix_balance_tx_order_id"`
	PaymentID     *string         `gorm:"type:char(36);index:ix_balance_tx_payment_id"`
	Description   string          `gorm:"type:varchar(255);not null"`
	CreatedAt     time.Time       `gorm:"type:datetime(3);not null;index:ix_balance_tx_customer_created,priority:2"`
}

func (Transaction) TableName() string { return "balance_transactions" }
