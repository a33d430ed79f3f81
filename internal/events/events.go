package events

import "time"

// Event names consumed by the fulfillment and notification subsystems.
const (
	PaymentCompleted      = "payment.completed"
	PaymentFailed         = "payment.failed"
	OrderFailed           = "order.failed"
	BalanceReserved       = "balance.reserved"
	BalanceDeducted       = "balance.deducted"
	BalanceAdjusted       = "balance.adjusted"
	BalanceTopUpCompleted = "balance.topup_completed"
)

type Envelope struct {
	Name       string    `json:"name"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

type PaymentEvent struct {
	PaymentID string `json:"payment_id"`
	OrderID   string `json:"order_id,omitempty"`
	Provider  string `json:"provider"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
	Reason    string `json:"reason,omitempty"`
}

type OrderEvent struct {
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	FailureCode string `json:"failure_code,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type BalanceEvent struct {
	CustomerID    string `json:"customer_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	BalanceAfter  string `json:"balance_after"`
	ReservedAfter string `json:"reserved_after"`
	OrderID       string `json:"order_id,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`
}
