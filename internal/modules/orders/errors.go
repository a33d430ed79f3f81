package orders

import "errors"

var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrNotPayable        = errors.New("order not payable")
)
