package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Test tokens understood by the sandbox
const (
	SandboxTokenApprove      = "tok_visa"
	SandboxTokenDecline      = "tok_chargeDeclined"
	SandboxTokenInsufficient = "tok_chargeDeclinedInsufficientFunds"
	SandboxTokenExpired      = "tok_chargeDeclinedExpiredCard"
	SandboxToken3DS          = "tok_threeDSecureRequired"
)

// Sandbox is an in-process Processor for development. Tokens decide the
// outcome; a 3-D Secure authorization succeeds once Approve is called.
type Sandbox struct {
	mu       sync.Mutex
	byID     map[string]*Authorization
	byKey    map[string]string
	approved map[string]bool
}

// NewSandbox creates an empty sandbox processor
func NewSandbox() *Sandbox {
	return &Sandbox{
		byID:     make(map[string]*Authorization),
		byKey:    make(map[string]string),
		approved: make(map[string]bool),
	}
}

func (s *Sandbox) CreateAuthorization(ctx context.Context, req CreateAuthorizationRequest, idempotencyKey string) (*Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byKey[idempotencyKey]; ok && idempotencyKey != "" {
		auth := *s.byID[id]
		return &auth, nil
	}

	id := "pi_" + uuid.NewString()
	auth := &Authorization{
		ID:           id,
		ClientSecret: id + "_secret_" + uuid.NewString()[:8],
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       StatusRequiresPaymentMethod,
		OrderID:      req.OrderID,
	}
	s.byID[id] = auth
	if idempotencyKey != "" {
		s.byKey[idempotencyKey] = id
	}

	out := *auth
	return &out, nil
}

func (s *Sandbox) ConfirmPayment(ctx context.Context, handle Handle, paymentMethodToken string, billing BillingDetails) (*Confirmation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, ok := s.byID[handle.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationNotFound, handle.ID)
	}
	if auth.ClientSecret != handle.ClientSecret {
		return nil, &APIError{StatusCode: 400, Code: "invalid_client_secret", Message: "client secret does not match"}
	}
	if auth.Status == StatusSucceeded {
		return &Confirmation{Status: OutcomeSucceeded}, nil
	}

	switch paymentMethodToken {
	case SandboxTokenDecline:
		return s.decline(auth, "card_declined", "Your card was declined."), nil
	case SandboxTokenInsufficient:
		return s.decline(auth, "insufficient_funds", "Your card has insufficient funds."), nil
	case SandboxTokenExpired:
		return s.decline(auth, "expired_card", "Your card has expired."), nil
	case SandboxToken3DS:
		if s.approved[auth.ID] {
			auth.Status = StatusSucceeded
			return &Confirmation{Status: OutcomeSucceeded}, nil
		}
		auth.Status = StatusRequiresAction
		return &Confirmation{
			Status:     OutcomeRequiresAction,
			NextAction: &NextAction{Type: "redirect_to_url", RedirectURL: "https://sandbox.invalid/3ds/" + auth.ID},
		}, nil
	default:
		auth.Status = StatusSucceeded
		auth.LastError = ""
		return &Confirmation{Status: OutcomeSucceeded}, nil
	}
}

func (s *Sandbox) decline(auth *Authorization, code, message string) *Confirmation {
	auth.Status = StatusRequiresPaymentMethod
	auth.LastError = code
	return &Confirmation{Status: OutcomeFailed, ErrorCode: code, ErrorMessage: message}
}

func (s *Sandbox) GetAuthorization(ctx context.Context, id string) (*Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationNotFound, id)
	}
	out := *auth
	return &out, nil
}

func (s *Sandbox) CancelAuthorization(ctx context.Context, id string) (*Authorization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAuthorizationNotFound, id)
	}
	if auth.Status != StatusSucceeded {
		auth.Status = StatusCanceled
	}
	out := *auth
	return &out, nil
}

// Approve simulates the customer completing a 3-D Secure challenge
func (s *Sandbox) Approve(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.approved[id] = true
	if auth, ok := s.byID[id]; ok && auth.Status == StatusRequiresAction {
		auth.Status = StatusSucceeded
	}
}

// Reject simulates the customer failing a 3-D Secure challenge
func (s *Sandbox) Reject(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if auth, ok := s.byID[id]; ok && auth.Status == StatusRequiresAction {
		auth.Status = StatusRequiresPaymentMethod
		auth.LastError = "payment_intent_authentication_failure"
	}
}

// Settle marks an authorization succeeded without a confirmation call
func (s *Sandbox) Settle(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if auth, ok := s.byID[id]; ok {
		auth.Status = StatusSucceeded
	}
}
