package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"github.com/juju/retry"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/domain/pricing"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
	"github.com/your-org/seasonal-storefront/internal/pkg/orderclient"
)

// State is the position of a checkout attempt in the protocol
type State string

const (
	StateIdle                  State = "idle"
	StateValidating            State = "validating"
	StateAwaitingAuthorization State = "awaiting_authorization"
	StateConfirming            State = "confirming"
	StateRequiresAction        State = "requires_action"
	StateSucceeded             State = "succeeded"
)

// maxGenerations bounds how many earlier paid orders for an identical cart
// are skipped before giving up.
const maxGenerations = 20

var attemptNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://storefront.example.com/checkout/attempts"))

// OrderService is the order side of the checkout. Both the in-process
// order.Service and the HTTP client satisfy it.
type OrderService interface {
	CreateOrder(ctx context.Context, req *order.CreateOrderRequest) (*order.CreateOrderResult, error)
	UpdateStatus(ctx context.Context, orderID string, req order.StatusUpdateRequest) (*order.Order, error)
}

// Cart is the part of the cart engine checkout needs
type Cart interface {
	Lines() cart.Lines
	Clear(ctx context.Context) error
}

// Attempt is one customer's checkout of one cart snapshot
type Attempt struct {
	ID           string              `json:"attempt_id"`
	State        State               `json:"state"`
	OrderID      string              `json:"order_id,omitempty"`
	OrderNumber  string              `json:"order_number,omitempty"`
	Pricing      pricing.Breakdown   `json:"pricing"`
	NextAction   *payment.NextAction `json:"next_action,omitempty"`
	ClientSecret string              `json:"client_secret,omitempty"`
	LastError    string              `json:"last_error,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`

	userID     string
	generation int
	handle     payment.Handle
	form       Form
	inFlight   bool
}

// Orchestrator drives checkout attempts from form submission to a paid order
type Orchestrator struct {
	orders    OrderService
	processor payment.Processor
	rules     pricing.RuleSet
	cfg       config.CheckoutConfig
	validate  *validator.Validate
	logger    *logrus.Logger
	clock     clock.Clock

	mu       sync.Mutex
	attempts map[string]*Attempt
}

// NewOrchestrator creates a checkout orchestrator
func NewOrchestrator(orders OrderService, processor payment.Processor, rules pricing.RuleSet, cfg config.CheckoutConfig, logger *logrus.Logger) *Orchestrator {
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 8 * time.Second
	}
	if cfg.AttemptTTL <= 0 {
		cfg.AttemptTTL = time.Hour
	}
	return &Orchestrator{
		orders:    orders,
		processor: processor,
		rules:     rules,
		cfg:       cfg,
		validate:  newValidator(),
		logger:    logger,
		clock:     clock.WallClock,
		attempts:  make(map[string]*Attempt),
	}
}

// AttemptID derives the attempt id of a user's cart snapshot. The same lines
// in any order give the same id.
func AttemptID(userID string, lines cart.Lines) string {
	sorted := lines.Clone()
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].ProductID != sorted[j].ProductID {
			return sorted[i].ProductID < sorted[j].ProductID
		}
		return sorted[i].DisplayName < sorted[j].DisplayName
	})

	var b strings.Builder
	b.WriteString(userID)
	for _, l := range sorted {
		fmt.Fprintf(&b, "\n%d|%s|%d|%s", l.ProductID, l.DisplayName, l.Quantity, l.UnitPrice.StringFixed(2))
	}
	return uuid.NewSHA1(attemptNamespace, []byte(b.String())).String()
}

func (a *Attempt) idempotencyKey() string {
	if a.generation == 0 {
		return a.ID
	}
	return fmt.Sprintf("%s.%d", a.ID, a.generation)
}

// Submit runs a checkout attempt for the current cart. It returns the attempt
// in StateSucceeded, or in StateRequiresAction when the customer must finish
// a verification step and call Resume. A submission racing an in-flight one
// gets ErrCheckoutInProgress along with a copy of the running attempt.
//
// Calls run to completion even when ctx is cancelled; the processor may
// already be holding funds.
func (o *Orchestrator) Submit(ctx context.Context, identity auth.Identity, c Cart, form Form) (*Attempt, error) {
	if !identity.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	lines := c.Lines()
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	a, err := o.begin(identity.UserID, lines, form)
	if err != nil {
		return a, err
	}
	defer o.finish(a)

	ctx = context.WithoutCancel(ctx)
	log := o.logger.WithFields(logrus.Fields{
		"attempt_id": a.ID,
		"user_id":    identity.UserID,
	})

	if err := validateForm(o.validate, form); err != nil {
		o.fail(a, StateIdle, err)
		return nil, err
	}

	breakdown := pricing.Price(lines, o.rules)
	o.update(a, func(a *Attempt) {
		a.Pricing = breakdown
		a.State = StateAwaitingAuthorization
	})

	res, err := o.createOrder(ctx, log, a, identity, lines, form, breakdown.Total)
	if err != nil {
		return nil, err
	}
	log = log.WithField("order_id", res.OrderID)

	if res.Existing {
		authz, err := o.getAuthorization(ctx, log, res.Authorization.ID)
		if err == nil && authz.Status == payment.StatusSucceeded {
			log.Info("Authorization already succeeded, completing earlier attempt")
			return o.complete(ctx, log, a, c), nil
		}
	}

	return o.confirm(ctx, log, a, c)
}

// Resume continues an attempt after the customer completed the processor's
// verification step.
func (o *Orchestrator) Resume(ctx context.Context, identity auth.Identity, attemptID string, c Cart) (*Attempt, error) {
	if !identity.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}

	o.mu.Lock()
	a, ok := o.attempts[attemptID]
	switch {
	case !ok || a.userID != identity.UserID:
		o.mu.Unlock()
		return nil, ErrAttemptNotFound
	case a.inFlight:
		out := *a
		o.mu.Unlock()
		return &out, ErrCheckoutInProgress
	case a.State != StateRequiresAction:
		o.mu.Unlock()
		return nil, ErrNothingToResume
	}
	a.inFlight = true
	a.UpdatedAt = o.clock.Now()
	o.mu.Unlock()
	defer o.finish(a)

	ctx = context.WithoutCancel(ctx)
	log := o.logger.WithFields(logrus.Fields{
		"attempt_id": a.ID,
		"user_id":    identity.UserID,
		"order_id":   a.OrderID,
	})

	authz, err := o.getAuthorization(ctx, log, a.handle.ID)
	if err != nil {
		failure := processorFailure(err)
		o.update(a, func(a *Attempt) { a.LastError = failure.Error() })
		return nil, failure
	}

	switch authz.Status {
	case payment.StatusSucceeded:
		log.Info("Authorization succeeded after customer action")
		return o.complete(ctx, log, a, c), nil
	case payment.StatusRequiresConfirmation:
		return o.confirm(ctx, log, a, c)
	case payment.StatusRequiresAction, payment.StatusProcessing:
		log.WithField("authorization_status", authz.Status).Info("Authorization still waiting on the customer")
		return o.snapshot(a), nil
	default:
		code := authz.LastError
		if code == "" {
			code = "payment_intent_authentication_failure"
		}
		perr := &PaymentError{Code: code, Message: payment.UserMessage(code, "")}
		log.WithFields(logrus.Fields{
			"authorization_status": authz.Status,
			"decline_code":         code,
		}).Warn("Customer action did not authorize the payment")
		o.fail(a, StateIdle, perr)
		return nil, perr
	}
}

// GetAttempt returns a copy of the caller's attempt
func (o *Orchestrator) GetAttempt(identity auth.Identity, attemptID string) (*Attempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.attempts[attemptID]
	if !ok || !identity.IsAuthenticated || a.userID != identity.UserID {
		return nil, ErrAttemptNotFound
	}
	out := *a
	return &out, nil
}

// begin claims the attempt for lines, creating it on first use
func (o *Orchestrator) begin(userID string, lines cart.Lines, form Form) (*Attempt, error) {
	id := AttemptID(userID, lines)
	now := o.clock.Now()

	o.mu.Lock()
	defer o.mu.Unlock()

	a, ok := o.attempts[id]
	if !ok {
		a = &Attempt{ID: id, userID: userID, CreatedAt: now}
		o.attempts[id] = a
	}
	if a.inFlight {
		out := *a
		return &out, ErrCheckoutInProgress
	}
	if a.State == StateSucceeded {
		// The same cart was filled again after a completed purchase.
		*a = Attempt{ID: id, userID: userID, generation: a.generation + 1, CreatedAt: now}
	}

	a.inFlight = true
	a.State = StateValidating
	a.form = form
	a.LastError = ""
	a.NextAction = nil
	a.UpdatedAt = now
	return a, nil
}

func (o *Orchestrator) finish(a *Attempt) {
	o.mu.Lock()
	a.inFlight = false
	o.mu.Unlock()
}

func (o *Orchestrator) update(a *Attempt, fn func(a *Attempt)) {
	o.mu.Lock()
	fn(a)
	a.UpdatedAt = o.clock.Now()
	o.mu.Unlock()
}

func (o *Orchestrator) fail(a *Attempt, state State, err error) {
	o.update(a, func(a *Attempt) {
		a.State = state
		a.LastError = err.Error()
	})
}

func (o *Orchestrator) snapshot(a *Attempt) *Attempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := *a
	return &out
}

func (o *Orchestrator) createOrder(ctx context.Context, log *logrus.Entry, a *Attempt, identity auth.Identity, lines cart.Lines, form Form, clientTotal decimal.Decimal) (*order.CreateOrderResult, error) {
	req := &order.CreateOrderRequest{
		UserID:       identity.UserID,
		CustomerName: form.FullName,
		Email:        form.Email,
		Phone:        form.Phone,
		Lines:        lines.Clone(),
		Billing:      form.billingAddress(),
		ClientTotal:  clientTotal,
	}

	for i := 0; i < maxGenerations; i++ {
		req.IdempotencyKey = a.idempotencyKey()

		var res *order.CreateOrderResult
		err := o.withRetry(ctx, log, "create_order", isFatalOrderError, func(ctx context.Context) error {
			var err error
			res, err = o.orders.CreateOrder(ctx, req)
			return err
		})

		switch {
		case errors.Is(err, order.ErrPriceMismatch), errors.Is(err, order.ErrUnknownProduct):
			log.WithError(err).Warn("Order service rejected the client pricing")
			o.fail(a, StateIdle, ErrPriceIntegrity)
			return nil, ErrPriceIntegrity
		case err != nil && isFatalOrderError(err):
			log.WithError(err).Error("Order service refused the order")
			o.fail(a, StateIdle, err)
			return nil, fmt.Errorf("create order: %w", err)
		case err != nil:
			log.WithError(err).Error("Failed to create order")
			o.fail(a, StateIdle, ErrRetryable)
			return nil, ErrRetryable
		}

		if !res.ServerTotal.Equal(clientTotal) {
			log.WithFields(logrus.Fields{
				"client_total": clientTotal.StringFixed(2),
				"server_total": res.ServerTotal.StringFixed(2),
			}).Warn("Server total disagrees with client pricing")
			o.fail(a, StateIdle, ErrPriceIntegrity)
			return nil, ErrPriceIntegrity
		}

		if res.Existing && res.Status == order.OrderStatusPaid {
			o.update(a, func(a *Attempt) { a.generation++ })
			continue
		}

		o.update(a, func(a *Attempt) {
			a.OrderID = res.OrderID
			a.OrderNumber = res.OrderNumber
			a.handle = res.Authorization
			a.ClientSecret = res.Authorization.ClientSecret
		})
		return res, nil
	}

	log.Error("Too many earlier orders for the same cart")
	o.fail(a, StateIdle, ErrRetryable)
	return nil, ErrRetryable
}

func (o *Orchestrator) getAuthorization(ctx context.Context, log *logrus.Entry, id string) (*payment.Authorization, error) {
	var authz *payment.Authorization
	err := o.withRetry(ctx, log, "get_authorization", isFatalPaymentError, func(ctx context.Context) error {
		var err error
		authz, err = o.processor.GetAuthorization(ctx, id)
		return err
	})
	if err != nil {
		log.WithError(err).Warn("Could not read authorization before confirming")
	}
	return authz, err
}

func (o *Orchestrator) confirm(ctx context.Context, log *logrus.Entry, a *Attempt, c Cart) (*Attempt, error) {
	var (
		handle payment.Handle
		form   Form
	)
	o.update(a, func(a *Attempt) {
		a.State = StateConfirming
		a.NextAction = nil
		handle = a.handle
		form = a.form
	})

	var conf *payment.Confirmation
	err := o.withRetry(ctx, log, "confirm_payment", isFatalPaymentError, func(ctx context.Context) error {
		var err error
		conf, err = o.processor.ConfirmPayment(ctx, handle, form.PaymentMethodToken, form.billingDetails())
		return err
	})
	if err != nil {
		log.WithError(err).Error("Payment confirmation failed")
		failure := processorFailure(err)
		o.fail(a, StateIdle, failure)
		return nil, failure
	}

	switch conf.Status {
	case payment.OutcomeSucceeded:
		return o.complete(ctx, log, a, c), nil
	case payment.OutcomeRequiresAction:
		log.Info("Payment requires customer action")
		o.update(a, func(a *Attempt) {
			a.State = StateRequiresAction
			a.NextAction = conf.NextAction
		})
		return o.snapshot(a), nil
	default:
		perr := &PaymentError{Code: conf.ErrorCode, Message: payment.UserMessage(conf.ErrorCode, conf.ErrorMessage)}
		log.WithField("decline_code", conf.ErrorCode).Warn("Payment declined")
		o.fail(a, StateIdle, perr)
		return nil, perr
	}
}

// complete records the paid order and empties the cart. A failed write-back
// is left to the reconciler; the charge has already succeeded.
func (o *Orchestrator) complete(ctx context.Context, log *logrus.Entry, a *Attempt, c Cart) *Attempt {
	var orderID, authID string
	o.update(a, func(a *Attempt) {
		a.State = StateSucceeded
		a.NextAction = nil
		a.LastError = ""
		orderID = a.OrderID
		authID = a.handle.ID
	})

	err := o.withRetry(ctx, log, "status_write_back", isFatalOrderError, func(ctx context.Context) error {
		_, err := o.orders.UpdateStatus(ctx, orderID, order.StatusUpdateRequest{
			Status:          order.OrderStatusPaid,
			AuthorizationID: authID,
		})
		return err
	})
	if err != nil {
		log.WithError(err).WithField("authorization_id", authID).
			Error("Order status write-back failed, leaving order for reconciliation")
	}

	if err := c.Clear(ctx); err != nil {
		log.WithError(err).Warn("Failed to clear cart after checkout")
	}

	log.Info("Checkout succeeded")
	return o.snapshot(a)
}

// withRetry runs fn with a per-call timeout until it succeeds, returns a fatal
// error or runs out of attempts. It returns the last error seen.
func (o *Orchestrator) withRetry(ctx context.Context, log *logrus.Entry, step string, isFatal func(error) bool, fn func(ctx context.Context) error) error {
	err := retry.Call(retry.CallArgs{
		Func: func() error {
			stepCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout)
			defer cancel()
			return fn(stepCtx)
		},
		IsFatalError: isFatal,
		NotifyFunc: func(err error, attempt int) {
			log.WithError(err).WithFields(logrus.Fields{
				"step":    step,
				"attempt": attempt,
			}).Warn("Checkout step failed")
		},
		Attempts:    o.cfg.MaxRetries,
		Delay:       o.cfg.RetryDelay,
		MaxDelay:    8 * o.cfg.RetryDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       o.clock,
	})
	if retry.IsAttemptsExceeded(err) {
		return retry.LastError(err)
	}
	return err
}

func isFatalOrderError(err error) bool {
	for _, target := range []error{
		order.ErrInvalidRequest,
		order.ErrPriceMismatch,
		order.ErrUnknownProduct,
		order.ErrOrderNotFound,
		order.ErrInvalidStatus,
		order.ErrInvalidTransition,
		order.ErrPaymentNotSettled,
		order.ErrAuthorizationMismatch,
		order.ErrPaymentCaptured,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	var httpErr *orderclient.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

func isFatalPaymentError(err error) bool {
	return !payment.IsTransient(err)
}

// processorFailure is what the customer sees once a processor call gives up
func processorFailure(err error) error {
	if payment.IsRateLimited(err) {
		return &PaymentError{Code: "rate_limit", Message: payment.UserMessage("rate_limit", "")}
	}
	return ErrRetryable
}

// Expire forgets idle attempts not touched within the attempt TTL
func (o *Orchestrator) Expire() int {
	cutoff := o.clock.Now().Add(-o.cfg.AttemptTTL)

	o.mu.Lock()
	defer o.mu.Unlock()

	removed := 0
	for id, a := range o.attempts {
		if !a.inFlight && a.UpdatedAt.Before(cutoff) {
			delete(o.attempts, id)
			removed++
		}
	}
	return removed
}

// Run expires attempts periodically until ctx is cancelled
func (o *Orchestrator) Run(ctx context.Context) {
	interval := o.cfg.AttemptTTL / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := o.Expire(); n > 0 {
				o.logger.WithField("expired", n).Debug("Expired checkout attempts")
			}
		}
	}
}
