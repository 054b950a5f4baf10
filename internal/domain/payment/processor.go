// Package payment talks to the card processor. It holds the processor
// contract, an HTTP client for it, a local sandbox and the decline taxonomy.
package payment

import (
	"context"
	"errors"
)

// Authorization statuses reported by the processor
const (
	StatusRequiresPaymentMethod = "requires_payment_method"
	StatusRequiresConfirmation  = "requires_confirmation"
	StatusRequiresAction        = "requires_action"
	StatusProcessing            = "processing"
	StatusSucceeded             = "succeeded"
	StatusCanceled              = "canceled"
)

// Confirmation outcomes
const (
	OutcomeSucceeded      = "succeeded"
	OutcomeRequiresAction = "requires_action"
	OutcomeFailed         = "failed"
)

var (
	ErrAuthorizationNotFound = errors.New("authorization not found")
	ErrProcessorUnavailable  = errors.New("payment processor unavailable")
)

// Authorization is a processor-side payment intent for one order
type Authorization struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	OrderID      string `json:"order_id"`
	LastError    string `json:"last_error_code,omitempty"`
}

// Handle is what a client needs to confirm an authorization
type Handle struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// CreateAuthorizationRequest asks the processor to hold an amount for an order
type CreateAuthorizationRequest struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"receipt_email,omitempty"`
}

// BillingDetails are forwarded with the payment method on confirmation
type BillingDetails struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// NextAction describes what the customer must do before the payment can finish
type NextAction struct {
	Type        string `json:"type"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// Confirmation is the result of confirming an authorization
type Confirmation struct {
	Status       string      `json:"status"`
	ErrorCode    string      `json:"error_code,omitempty"`
	ErrorMessage string      `json:"error_message,omitempty"`
	NextAction   *NextAction `json:"next_action,omitempty"`
}

// Processor is the card processor contract
type Processor interface {
	CreateAuthorization(ctx context.Context, req CreateAuthorizationRequest, idempotencyKey string) (*Authorization, error)
	ConfirmPayment(ctx context.Context, handle Handle, paymentMethodToken string, billing BillingDetails) (*Confirmation, error)
	GetAuthorization(ctx context.Context, id string) (*Authorization, error)
	CancelAuthorization(ctx context.Context, id string) (*Authorization, error)
}
