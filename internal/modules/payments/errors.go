package payments

import "errors"

var (
	ErrNotFound          = errors.New("payment not found")
	ErrOrderNotPayable   = errors.New("order not payable")
	ErrNotRefundable     = errors.New("payment not refundable")
	ErrRefundTooLarge    = errors.New("refund exceeds payment amount")
	ErrRefundUnsupported = errors.New("gateway has no refund support")
	ErrUnknownEvent      = errors.New("webhook event not recognized")
)
