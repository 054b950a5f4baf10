package checkout

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/domain/pricing"
)

// MockOrderService is an in-memory order service backed by the sandbox processor
type MockOrderService struct {
	mu        sync.Mutex
	processor payment.Processor
	rules     pricing.RuleSet

	byKey  map[string]*order.CreateOrderResult
	status map[string]order.OrderStatus

	// ServerTotal replaces the recomputed total when set
	ServerTotal *decimal.Decimal
	// ReportedTotal is returned instead of the accepted total when set
	ReportedTotal *decimal.Decimal

	CreateErrs  []error
	UpdateErr   error
	CreateCalls int
	UpdateCalls int

	started chan struct{}
	release chan struct{}
}

func newMockOrderService(processor payment.Processor, rules pricing.RuleSet) *MockOrderService {
	return &MockOrderService{
		processor: processor,
		rules:     rules,
		byKey:     make(map[string]*order.CreateOrderResult),
		status:    make(map[string]order.OrderStatus),
	}
}

// block makes the next CreateOrder wait until the returned func is called
func (m *MockOrderService) block() (started <-chan struct{}, release func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = make(chan struct{})
	m.release = make(chan struct{})
	rel := m.release
	return m.started, func() { close(rel) }
}

func (m *MockOrderService) CreateOrder(ctx context.Context, req *order.CreateOrderRequest) (*order.CreateOrderResult, error) {
	m.mu.Lock()
	m.CreateCalls++
	started, release := m.started, m.release
	m.started, m.release = nil, nil
	var err error
	if len(m.CreateErrs) > 0 {
		err, m.CreateErrs = m.CreateErrs[0], m.CreateErrs[1:]
	}
	m.mu.Unlock()

	if started != nil {
		close(started)
		<-release
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if res, ok := m.byKey[req.IdempotencyKey]; ok {
		out := *res
		out.Existing = true
		out.Status = m.status[res.OrderID]
		return &out, nil
	}

	total := pricing.Price(req.Lines, m.rules).Total
	if m.ServerTotal != nil {
		total = *m.ServerTotal
	}
	if !total.Equal(req.ClientTotal) {
		return nil, order.ErrPriceMismatch
	}

	orderID := uuid.NewString()
	authz, err := m.processor.CreateAuthorization(ctx, payment.CreateAuthorizationRequest{
		OrderID:  orderID,
		Amount:   pricing.MinorUnits(total),
		Currency: "USD",
		Email:    req.Email,
	}, orderID)
	if err != nil {
		return nil, err
	}

	res := &order.CreateOrderResult{
		OrderID:       orderID,
		OrderNumber:   "ORD-20261210-" + orderID[:8],
		Status:        order.OrderStatusPendingPayment,
		Authorization: payment.Handle{ID: authz.ID, ClientSecret: authz.ClientSecret},
		ServerTotal:   total,
	}
	if m.ReportedTotal != nil {
		res.ServerTotal = *m.ReportedTotal
	}
	m.byKey[req.IdempotencyKey] = res
	m.status[orderID] = order.OrderStatusPendingPayment

	out := *res
	return &out, nil
}

func (m *MockOrderService) UpdateStatus(_ context.Context, orderID string, req order.StatusUpdateRequest) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	if _, ok := m.status[orderID]; !ok {
		return nil, order.ErrOrderNotFound
	}
	m.status[orderID] = req.Status
	return &order.Order{ID: orderID, Status: req.Status, PaymentIntentID: req.AuthorizationID}, nil
}

func (m *MockOrderService) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.status)
}

func (m *MockOrderService) statusOf(orderID string) order.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[orderID]
}

func (m *MockOrderService) authorizationOf(orderID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range m.byKey {
		if res.OrderID == orderID {
			return res.Authorization.ID
		}
	}
	return ""
}

// MockProcessor wraps the sandbox and lets tests inject confirmation failures
type MockProcessor struct {
	*payment.Sandbox
	mu           sync.Mutex
	ConfirmErrs  []error
	ConfirmCalls int
}

func newMockProcessor() *MockProcessor {
	return &MockProcessor{Sandbox: payment.NewSandbox()}
}

func (m *MockProcessor) ConfirmPayment(ctx context.Context, handle payment.Handle, token string, billing payment.BillingDetails) (*payment.Confirmation, error) {
	m.mu.Lock()
	m.ConfirmCalls++
	var err error
	if len(m.ConfirmErrs) > 0 {
		err, m.ConfirmErrs = m.ConfirmErrs[0], m.ConfirmErrs[1:]
	}
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Sandbox.ConfirmPayment(ctx, handle, token, billing)
}

func (m *MockProcessor) confirmCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ConfirmCalls
}

// MockCart is a cart that remembers whether it was cleared
type MockCart struct {
	mu       sync.Mutex
	lines    cart.Lines
	cleared  bool
	ClearErr error
}

func (m *MockCart) Lines() cart.Lines {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines.Clone()
}

func (m *MockCart) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ClearErr != nil {
		return m.ClearErr
	}
	m.lines = nil
	m.cleared = true
	return nil
}

func (m *MockCart) wasCleared() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cleared
}
