package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/pkg/logger"
)

func newTestReconciler(f *fixture, pub EventPublisher) *Reconciler {
	return NewReconciler(f.svc, pub, config.ReconcileConfig{
		Interval:     time.Second,
		PendingAfter: 2 * time.Minute,
		AbandonAfter: 24 * time.Hour,
		BatchSize:    10,
	}, logger.Discard())
}

func TestReconciler_SettlesMissedWriteBack(t *testing.T) {
	f := setupService(t)
	pub := &MockPublisher{}
	r := newTestReconciler(f, pub)
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, createRequest("key-1"))
	require.NoError(t, err)
	f.confirm(t, res, payment.SandboxTokenApprove)
	// The orchestrator's write-back never arrived.
	f.repo.age(res.OrderID, 5*time.Minute)

	report := r.RunOnce(ctx)
	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 1, report.Published)

	stored, err := f.repo.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPaid, stored.Status)

	f.svc.Wait()
	assert.Equal(t, 1, f.notifier.count())
	require.Len(t, pub.Published, 1)
	assert.Equal(t, EventOrderPaid, pub.Published[0].Type)

	// A second pass finds nothing left to do.
	assert.Equal(t, Report{}, r.RunOnce(ctx))
}

func TestReconciler_LeavesFreshOrdersAlone(t *testing.T) {
	f := setupService(t)
	r := newTestReconciler(f, &MockPublisher{})
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, createRequest("key-1"))
	require.NoError(t, err)
	f.confirm(t, res, payment.SandboxTokenApprove)

	assert.Equal(t, Report{}, r.RunOnce(ctx))
	stored, err := f.repo.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPendingPayment, stored.Status)
}

func TestReconciler_FailsCanceledAuthorizations(t *testing.T) {
	f := setupService(t)
	r := newTestReconciler(f, &MockPublisher{})
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, createRequest("key-1"))
	require.NoError(t, err)
	_, err = f.proc.Sandbox.CancelAuthorization(ctx, res.Authorization.ID)
	require.NoError(t, err)
	f.repo.age(res.OrderID, 10*time.Minute)

	report := r.RunOnce(ctx)
	assert.Equal(t, 1, report.Failed)

	stored, err := f.repo.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusFailed, stored.Status)
	assert.Equal(t, PaymentStatusFailed, stored.PaymentStatus)
}

func TestReconciler_CancelsAbandonedOrders(t *testing.T) {
	f := setupService(t)
	r := newTestReconciler(f, &MockPublisher{})
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, createRequest("key-1"))
	require.NoError(t, err)
	f.repo.age(res.OrderID, 25*time.Hour)

	report := r.RunOnce(ctx)
	assert.Equal(t, 1, report.Abandoned)
	assert.Equal(t, 1, f.proc.CancelCalls)

	stored, err := f.repo.FindByID(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusCancelled, stored.Status)
	assert.Equal(t, "abandoned", stored.CancelReason)
}

func TestReconciler_SyncsInProgressPaymentStatus(t *testing.T) {
	f := setupService(t)
	r := newTestReconciler(f, &MockPublisher{})
	ctx := context.Background()

	threeDS, err := f.svc.CreateOrder(ctx, createRequest("key-3ds"))
	require.NoError(t, err)
	f.confirm(t, threeDS, payment.SandboxToken3DS)
	f.repo.age(threeDS.OrderID, 5*time.Minute)

	declined, err := f.svc.CreateOrder(ctx, createRequest("key-declined"))
	require.NoError(t, err)
	f.confirm(t, declined, payment.SandboxTokenDecline)
	f.repo.age(declined.OrderID, 5*time.Minute)

	r.RunOnce(ctx)

	stored, err := f.repo.FindByID(ctx, threeDS.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPendingPayment, stored.Status)
	assert.Equal(t, PaymentStatusRequiresAction, stored.PaymentStatus)

	stored, err = f.repo.FindByID(ctx, declined.OrderID)
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPendingPayment, stored.Status)
	assert.Equal(t, PaymentStatusFailed, stored.PaymentStatus)
}

func TestReconciler_SkipsWhenProcessorUnavailable(t *testing.T) {
	f := setupService(t)
	r := newTestReconciler(f, &MockPublisher{})
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, createRequest("key-1"))
	require.NoError(t, err)
	f.confirm(t, res, payment.SandboxTokenApprove)
	f.repo.age(res.OrderID, 5*time.Minute)

	f.proc.GetErr = payment.ErrProcessorUnavailable
	assert.Equal(t, 0, r.RunOnce(ctx).Settled)

	f.proc.GetErr = nil
	assert.Equal(t, 1, r.RunOnce(ctx).Settled)
}

func TestReconciler_RetriesFailedPublishes(t *testing.T) {
	f := setupService(t)
	pub := &MockPublisher{Err: errors.New("broker unavailable")}
	r := newTestReconciler(f, pub)
	ctx := context.Background()

	res, err := f.svc.CreateOrder(ctx, createRequest("key-1"))
	require.NoError(t, err)
	f.confirm(t, res, payment.SandboxTokenApprove)
	_, err = f.svc.UpdateStatus(ctx, res.OrderID, StatusUpdateRequest{Status: OrderStatusPaid})
	require.NoError(t, err)

	assert.Equal(t, 0, r.RunOnce(ctx).Published)

	pub.Err = nil
	assert.Equal(t, 1, r.RunOnce(ctx).Published)
	assert.Equal(t, 0, r.RunOnce(ctx).Published)
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	f := setupService(t)
	r := newTestReconciler(f, &MockPublisher{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("reconciler did not stop")
	}
}
