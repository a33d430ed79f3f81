package balance

import "errors"

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoReservation     = errors.New("no open reservation for order")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrCurrencyMismatch  = errors.New("currency does not match wallet currency")
)
