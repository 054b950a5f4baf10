package order

import "errors"

var (
	ErrOrderNotFound         = errors.New("order not found")
	ErrDuplicateOrder        = errors.New("order already exists for idempotency key")
	ErrInvalidRequest        = errors.New("invalid order request")
	ErrUnknownProduct        = errors.New("order contains an unknown product")
	ErrPriceMismatch         = errors.New("client total does not match server total")
	ErrInvalidStatus         = errors.New("unsupported order status")
	ErrInvalidTransition     = errors.New("invalid order status transition")
	ErrPaymentNotSettled     = errors.New("payment authorization has not succeeded")
	ErrAuthorizationMismatch = errors.New("payment authorization does not belong to order")
	ErrPaymentCaptured       = errors.New("payment already captured")
)

// errorCodes are the machine-readable codes the HTTP surface returns so remote
// callers can recover the sentinel.
var errorCodes = map[string]error{
	"order_not_found":        ErrOrderNotFound,
	"duplicate_order":        ErrDuplicateOrder,
	"invalid_request":        ErrInvalidRequest,
	"unknown_product":        ErrUnknownProduct,
	"price_mismatch":         ErrPriceMismatch,
	"invalid_status":         ErrInvalidStatus,
	"invalid_transition":     ErrInvalidTransition,
	"payment_not_settled":    ErrPaymentNotSettled,
	"authorization_mismatch": ErrAuthorizationMismatch,
	"payment_captured":       ErrPaymentCaptured,
}

// ErrorCode returns the code for the sentinel err wraps, or "" if none
func ErrorCode(err error) string {
	for code, sentinel := range errorCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return ""
}

// ErrorFromCode returns the sentinel for code, or nil if the code is unknown
func ErrorFromCode(code string) error {
	return errorCodes[code]
}
