package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNotAuthenticated   = errors.New("sign in to complete your purchase")
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrCheckoutInProgress = errors.New("checkout already in progress for this cart")
	ErrPriceIntegrity     = errors.New("prices changed while you were checking out, please review your cart and try again")
	ErrRetryable          = errors.New("we could not complete your order right now, please try again")
	ErrAttemptNotFound    = errors.New("checkout attempt not found")
	ErrNothingToResume    = errors.New("checkout attempt is not waiting for customer action")
)

// ValidationError lists the invalid form fields with a message per field
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("invalid checkout form: %s", strings.Join(names, ", "))
}

// PaymentError is a decline reported by the processor. Message is safe to
// show to the customer.
type PaymentError struct {
	Code    string
	Message string
}

func (e *PaymentError) Error() string {
	if e.Code == "" {
		return "payment failed: " + e.Message
	}
	return fmt.Sprintf("payment failed (%s): %s", e.Code, e.Message)
}
