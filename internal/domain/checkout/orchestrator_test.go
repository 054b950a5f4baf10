package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/domain/pricing"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
	"github.com/your-org/seasonal-storefront/internal/pkg/logger"
	"github.com/your-org/seasonal-storefront/internal/pkg/orderclient"
)

type fixture struct {
	orch   *Orchestrator
	orders *MockOrderService
	proc   *MockProcessor
	rules  pricing.RuleSet
}

func testCheckoutConfig() config.CheckoutConfig {
	return config.CheckoutConfig{
		Currency:    "USD",
		StepTimeout: time.Second,
		MaxRetries:  3,
		RetryDelay:  time.Millisecond,
		AttemptTTL:  time.Hour,
	}
}

func setupOrchestrator(t *testing.T) *fixture {
	t.Helper()
	rules, err := pricing.NewRuleSet("0.07", []int64{40})
	require.NoError(t, err)

	f := &fixture{proc: newMockProcessor(), rules: rules}
	f.orders = newMockOrderService(f.proc, rules)
	f.orch = NewOrchestrator(f.orders, f.proc, rules, testCheckoutConfig(), logger.Discard())
	return f
}

var shopper = auth.Identity{IsAuthenticated: true, UserID: "user-1", DisplayName: "Ada", Email: "ada@example.com"}

func usd(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// treeAndWreaths prices to 158.00 subtotal, 11.06 tax, 169.06 total
func treeAndWreaths() *MockCart {
	return &MockCart{lines: cart.Lines{
		{ProductID: 1, DisplayName: "Nordmann Fir (6 ft)", UnitPrice: usd("74.00"), Quantity: 1},
		{ProductID: 11, DisplayName: "Frosted Pine Wreath", UnitPrice: usd("42.00"), Quantity: 2},
	}}
}

func validForm(token string) Form {
	return Form{
		FullName:           "Ada Lovelace",
		Email:              "ada@example.com",
		Phone:              "+15035550100",
		Street:             "12 Mistletoe Row",
		City:               "Portland",
		State:              "OR",
		PostalCode:         "97201",
		Country:            "US",
		PaymentMethodToken: token,
	}
}

func TestSubmit_Succeeds(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()

	attempt, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, attempt.State)
	assert.NotEmpty(t, attempt.OrderID)
	assert.Equal(t, "169.06", attempt.Pricing.Total.StringFixed(2))
	assert.Equal(t, order.OrderStatusPaid, f.orders.statusOf(attempt.OrderID))
	assert.Equal(t, 1, f.orders.UpdateCalls)
	assert.True(t, c.wasCleared())
}

func TestSubmit_Guards(t *testing.T) {
	f := setupOrchestrator(t)

	_, err := f.orch.Submit(context.Background(), auth.Anonymous, treeAndWreaths(), validForm(payment.SandboxTokenApprove))
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	_, err = f.orch.Submit(context.Background(), shopper, &MockCart{}, validForm(payment.SandboxTokenApprove))
	assert.ErrorIs(t, err, ErrEmptyCart)

	assert.Equal(t, 0, f.orders.CreateCalls)
}

func TestSubmit_ValidationErrorsStayLocal(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Form)
		field  string
	}{
		{"missing name", func(f *Form) { f.FullName = "" }, "full_name"},
		{"bad email", func(f *Form) { f.Email = "ada-at-example" }, "email"},
		{"bad phone", func(f *Form) { f.Phone = "555-0100" }, "phone"},
		{"short postal code", func(f *Form) { f.PostalCode = "97" }, "postal_code"},
		{"unknown country", func(f *Form) { f.Country = "USA" }, "country"},
		{"incomplete token", func(f *Form) { f.PaymentMethodToken = "card_4242" }, "payment_method_token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupOrchestrator(t)
			c := treeAndWreaths()
			form := validForm(payment.SandboxTokenApprove)
			tt.mutate(&form)

			_, err := f.orch.Submit(context.Background(), shopper, c, form)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)
			assert.Equal(t, 0, f.orders.CreateCalls)
			assert.False(t, c.wasCleared())

			attempt, err := f.orch.GetAttempt(shopper, AttemptID(shopper.UserID, c.Lines()))
			require.NoError(t, err)
			assert.Equal(t, StateIdle, attempt.State)
		})
	}
}

func TestSubmit_PriceTamperIsRejected(t *testing.T) {
	t.Run("server recomputes a different total", func(t *testing.T) {
		f := setupOrchestrator(t)
		c := &MockCart{lines: cart.Lines{
			{ProductID: 40, DisplayName: "Gift Card ($50)", UnitPrice: usd("50.00"), Quantity: 1},
		}}
		server := usd("65.00")
		f.orders.ServerTotal = &server

		_, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
		assert.ErrorIs(t, err, ErrPriceIntegrity)
		assert.Equal(t, 0, f.orders.orderCount())
		assert.Equal(t, 1, f.orders.CreateCalls, "price errors are not retried")
		assert.False(t, c.wasCleared())
		assert.Len(t, c.Lines(), 1)
	})

	t.Run("server reports a different total", func(t *testing.T) {
		f := setupOrchestrator(t)
		c := treeAndWreaths()
		reported := usd("1.00")
		f.orders.ReportedTotal = &reported

		_, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
		assert.ErrorIs(t, err, ErrPriceIntegrity)
		assert.Equal(t, 0, f.proc.confirmCalls())
		assert.False(t, c.wasCleared())
	})
}

func TestSubmit_DeclineThenRetry(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	ctx := context.Background()

	_, err := f.orch.Submit(ctx, shopper, c, validForm(payment.SandboxTokenDecline))
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "card_declined", perr.Code)
	assert.Equal(t, payment.UserMessage("card_declined", ""), perr.Message)
	assert.False(t, c.wasCleared())
	assert.Len(t, c.Lines(), 2)

	attempt, err := f.orch.GetAttempt(shopper, AttemptID(shopper.UserID, c.Lines()))
	require.NoError(t, err)
	assert.Equal(t, StateIdle, attempt.State)
	assert.NotEmpty(t, attempt.LastError)

	attempt, err = f.orch.Submit(ctx, shopper, c, validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, attempt.State)
	assert.Equal(t, 1, f.orders.orderCount(), "the retry reuses the order")
	assert.Equal(t, 2, f.proc.confirmCalls())
	assert.True(t, c.wasCleared())
}

func TestSubmit_WriteBackFailureStillSucceeds(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	f.orders.UpdateErr = context.DeadlineExceeded

	attempt, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, attempt.State)
	assert.Equal(t, 3, f.orders.UpdateCalls)
	assert.Equal(t, order.OrderStatusPendingPayment, f.orders.statusOf(attempt.OrderID))
	assert.True(t, c.wasCleared())

	authz, err := f.proc.GetAuthorization(context.Background(), f.orders.authorizationOf(attempt.OrderID))
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSucceeded, authz.Status)
}

func TestSubmit_ClearFailureDoesNotFailCheckout(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	c.ClearErr = errors.New("redis unavailable")

	attempt, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, attempt.State)
}

func TestSubmit_ThreeDSecureResume(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	ctx := context.Background()

	attempt, err := f.orch.Submit(ctx, shopper, c, validForm(payment.SandboxToken3DS))
	require.NoError(t, err)
	assert.Equal(t, StateRequiresAction, attempt.State)
	require.NotNil(t, attempt.NextAction)
	assert.NotEmpty(t, attempt.NextAction.RedirectURL)
	assert.NotEmpty(t, attempt.ClientSecret)
	assert.False(t, c.wasCleared())

	other := auth.Identity{IsAuthenticated: true, UserID: "user-2"}
	_, err = f.orch.Resume(ctx, other, attempt.ID, c)
	assert.ErrorIs(t, err, ErrAttemptNotFound)

	// Still waiting on the challenge
	again, err := f.orch.Resume(ctx, shopper, attempt.ID, c)
	require.NoError(t, err)
	assert.Equal(t, StateRequiresAction, again.State)

	f.proc.Approve(f.orders.authorizationOf(attempt.OrderID))

	done, err := f.orch.Resume(ctx, shopper, attempt.ID, c)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, done.State)
	assert.Nil(t, done.NextAction)
	assert.True(t, c.wasCleared())
	assert.Equal(t, order.OrderStatusPaid, f.orders.statusOf(done.OrderID))

	_, err = f.orch.Resume(ctx, shopper, attempt.ID, c)
	assert.ErrorIs(t, err, ErrNothingToResume)
}

func TestResume_CompletesWhenChallengeAlreadySettled(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	ctx := context.Background()

	attempt, err := f.orch.Submit(ctx, shopper, c, validForm(payment.SandboxToken3DS))
	require.NoError(t, err)
	require.Equal(t, StateRequiresAction, attempt.State)

	f.proc.Approve(f.orders.authorizationOf(attempt.OrderID))
	// A live processor refuses to confirm an authorization that already succeeded
	f.proc.ConfirmErrs = []error{&payment.APIError{StatusCode: 400, Code: "payment_intent_unexpected_state"}}
	confirms := f.proc.confirmCalls()

	done, err := f.orch.Resume(ctx, shopper, attempt.ID, c)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, done.State)
	assert.True(t, c.wasCleared())
	assert.Equal(t, order.OrderStatusPaid, f.orders.statusOf(done.OrderID))
	assert.Equal(t, confirms, f.proc.confirmCalls())
}

func TestResume_FailedChallengeAsksForAnotherCard(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	ctx := context.Background()

	attempt, err := f.orch.Submit(ctx, shopper, c, validForm(payment.SandboxToken3DS))
	require.NoError(t, err)
	f.proc.Reject(f.orders.authorizationOf(attempt.OrderID))

	_, err = f.orch.Resume(ctx, shopper, attempt.ID, c)
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "payment_intent_authentication_failure", perr.Code)
	assert.Equal(t, payment.UserMessage("payment_intent_authentication_failure", ""), perr.Message)
	assert.False(t, c.wasCleared())

	idle, err := f.orch.GetAttempt(shopper, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, idle.State)

	retried, err := f.orch.Submit(ctx, shopper, c, validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, retried.State)
	assert.Equal(t, attempt.OrderID, retried.OrderID)
	assert.Equal(t, 1, f.orders.orderCount())
}

func TestSubmit_RateLimitIsReportedToCustomer(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	limited := &payment.APIError{StatusCode: 429, Code: "rate_limit", Message: "Too many requests"}
	f.proc.ConfirmErrs = []error{limited, limited, limited}

	_, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
	var perr *PaymentError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "rate_limit", perr.Code)
	assert.Equal(t, payment.UserMessage("rate_limit", ""), perr.Message)
	assert.NotErrorIs(t, err, ErrRetryable)
	assert.Equal(t, 3, f.proc.confirmCalls())
	assert.False(t, c.wasCleared())
}

func TestSubmit_RemoteOrderServiceErrors(t *testing.T) {
	t.Run("client errors are not retried", func(t *testing.T) {
		f := setupOrchestrator(t)
		c := treeAndWreaths()
		f.orders.CreateErrs = []error{&orderclient.HTTPError{StatusCode: 401, Message: "Authorization header required"}}

		_, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
		var httpErr *orderclient.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, 401, httpErr.StatusCode)
		assert.Equal(t, 1, f.orders.CreateCalls)
		assert.Equal(t, 0, f.orders.orderCount())
	})

	t.Run("server errors are retried", func(t *testing.T) {
		f := setupOrchestrator(t)
		c := treeAndWreaths()
		f.orders.CreateErrs = []error{
			&orderclient.HTTPError{StatusCode: 502, Message: "bad gateway"},
			&orderclient.HTTPError{StatusCode: 429, Message: "slow down"},
		}

		attempt, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
		require.NoError(t, err)
		assert.Equal(t, StateSucceeded, attempt.State)
		assert.Equal(t, 3, f.orders.CreateCalls)
	})
}

func TestSubmit_RejectsReentrantSubmission(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	started, release := f.orders.block()

	type result struct {
		attempt *Attempt
		err     error
	}
	first := make(chan result, 1)
	go func() {
		a, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
		first <- result{a, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first submission never reached the order service")
	}

	running, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	require.NotNil(t, running)
	assert.Equal(t, AttemptID(shopper.UserID, c.Lines()), running.ID)
	assert.Equal(t, StateAwaitingAuthorization, running.State)

	release()
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, StateSucceeded, res.attempt.State)
	assert.Equal(t, 1, f.orders.orderCount())
	assert.Equal(t, 1, f.proc.confirmCalls())
}

func TestSubmit_RetriesTransientFailures(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	f.orders.CreateErrs = []error{errors.New("connection reset by peer")}
	f.proc.ConfirmErrs = []error{&payment.APIError{StatusCode: 503, Code: "service_unavailable"}}

	attempt, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, attempt.State)
	assert.Equal(t, 2, f.orders.CreateCalls)
	assert.Equal(t, 2, f.proc.confirmCalls())
	assert.Equal(t, 1, f.orders.orderCount())
}

func TestSubmit_RetryableWhenServicesStayDown(t *testing.T) {
	t.Run("order service", func(t *testing.T) {
		f := setupOrchestrator(t)
		c := treeAndWreaths()
		down := errors.New("connection refused")
		f.orders.CreateErrs = []error{down, down, down}

		_, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
		assert.ErrorIs(t, err, ErrRetryable)
		assert.Equal(t, 3, f.orders.CreateCalls)
		assert.False(t, c.wasCleared())
	})

	t.Run("processor", func(t *testing.T) {
		f := setupOrchestrator(t)
		c := treeAndWreaths()
		f.proc.ConfirmErrs = []error{payment.ErrProcessorUnavailable, payment.ErrProcessorUnavailable, payment.ErrProcessorUnavailable}

		_, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
		assert.ErrorIs(t, err, ErrRetryable)
		assert.False(t, c.wasCleared())

		// The form is kept; a plain resubmit goes through on the same order.
		attempt, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenApprove))
		require.NoError(t, err)
		assert.Equal(t, StateSucceeded, attempt.State)
		assert.Equal(t, 1, f.orders.orderCount())
	})
}

func TestSubmit_CompletesEarlierAuthorizedAttempt(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()
	ctx := context.Background()

	// A previous attempt was charged but its response never reached us.
	res, err := f.orders.CreateOrder(ctx, &order.CreateOrderRequest{
		UserID:         shopper.UserID,
		Lines:          c.Lines(),
		ClientTotal:    usd("169.06"),
		IdempotencyKey: AttemptID(shopper.UserID, c.Lines()),
	})
	require.NoError(t, err)
	f.proc.Settle(res.Authorization.ID)

	attempt, err := f.orch.Submit(ctx, shopper, c, validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, attempt.State)
	assert.Equal(t, res.OrderID, attempt.OrderID)
	assert.Equal(t, 0, f.proc.confirmCalls())
	assert.Equal(t, order.OrderStatusPaid, f.orders.statusOf(res.OrderID))
}

func TestSubmit_SameCartBoughtAgainOpensNewOrder(t *testing.T) {
	f := setupOrchestrator(t)
	ctx := context.Background()

	first, err := f.orch.Submit(ctx, shopper, treeAndWreaths(), validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)

	second, err := f.orch.Submit(ctx, shopper, treeAndWreaths(), validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.OrderID, second.OrderID)

	// A fresh process has no memory of either purchase.
	restarted := NewOrchestrator(f.orders, f.proc, f.rules, testCheckoutConfig(), logger.Discard())
	third, err := restarted.Submit(ctx, shopper, treeAndWreaths(), validForm(payment.SandboxTokenApprove))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, third.State)
	assert.NotEqual(t, first.OrderID, third.OrderID)
	assert.NotEqual(t, second.OrderID, third.OrderID)
	assert.Equal(t, 3, f.orders.orderCount())
}

func TestAttemptID(t *testing.T) {
	lines := treeAndWreaths().Lines()
	reversed := cart.Lines{lines[1], lines[0]}

	assert.Equal(t, AttemptID("user-1", lines), AttemptID("user-1", reversed))
	assert.NotEqual(t, AttemptID("user-1", lines), AttemptID("user-2", lines))

	more := lines.Clone()
	more[0].Quantity = 2
	assert.NotEqual(t, AttemptID("user-1", lines), AttemptID("user-1", more))
}

func TestExpire(t *testing.T) {
	f := setupOrchestrator(t)
	c := treeAndWreaths()

	_, err := f.orch.Submit(context.Background(), shopper, c, validForm(payment.SandboxTokenDecline))
	require.Error(t, err)

	assert.Equal(t, 0, f.orch.Expire())

	f.orch.clock = testclock.NewClock(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 1, f.orch.Expire())

	_, err = f.orch.GetAttempt(shopper, AttemptID(shopper.UserID, c.Lines()))
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestSummary(t *testing.T) {
	f := setupOrchestrator(t)
	lines := cart.Lines{
		{ProductID: 11, DisplayName: "Frosted Pine Wreath", UnitPrice: usd("42.00"), Quantity: 1},
		{ProductID: 40, DisplayName: "Gift Card ($50)", UnitPrice: usd("50.00"), Quantity: 1},
	}

	summary, err := f.orch.Summary(shopper, lines)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.ItemCount)
	assert.Equal(t, "2.94", summary.Pricing.Tax.StringFixed(2))
	assert.Equal(t, int64(9494), summary.TotalMinor)
	assert.Equal(t, AttemptID(shopper.UserID, lines), summary.AttemptID)
	require.NotEmpty(t, summary.PaymentMethods)

	_, err = f.orch.Summary(auth.Anonymous, lines)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = f.orch.Summary(shopper, nil)
	assert.ErrorIs(t, err, ErrEmptyCart)
}
