package handlers

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/domain/pricing"
)

// MockOrderService keeps orders in memory and authorizes through a sandbox
type MockOrderService struct {
	mu        sync.Mutex
	processor *payment.Sandbox
	byID      map[string]*order.Order
	byKey     map[string]string

	updates   []order.StatusUpdateRequest

	CreateErr error
	UpdateErr error
}

func NewMockOrderService(processor *payment.Sandbox) *MockOrderService {
	return &MockOrderService{
		processor: processor,
		byID:      make(map[string]*order.Order),
		byKey:     make(map[string]string),
	}
}

func (m *MockOrderService) CreateOrder(ctx context.Context, req *order.CreateOrderRequest) (*order.CreateOrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CreateErr != nil {
		return nil, m.CreateErr
	}
	if id, ok := m.byKey[req.IdempotencyKey]; ok {
		o := m.byID[id]
		return &order.CreateOrderResult{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			Status:        o.Status,
			Authorization: payment.Handle{ID: o.PaymentIntentID, ClientSecret: o.AuthorizationSecret},
			ServerTotal:   o.Total,
			Existing:      true,
		}, nil
	}

	id := uuid.NewString()
	authz, err := m.processor.CreateAuthorization(ctx, payment.CreateAuthorizationRequest{
		OrderID:  id,
		Amount:   pricing.MinorUnits(req.ClientTotal),
		Currency: "USD",
	}, id)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		ID:                  id,
		OrderNumber:         fmt.Sprintf("ORD-TEST-%d", len(m.byID)+1),
		UserID:              req.UserID,
		Status:              order.OrderStatusPendingPayment,
		Email:               req.Email,
		Total:               req.ClientTotal,
		PaymentIntentID:     authz.ID,
		AuthorizationSecret: authz.ClientSecret,
		CreatedAt:           time.Now().UTC(),
	}
	m.byID[id] = o
	m.byKey[req.IdempotencyKey] = id

	return &order.CreateOrderResult{
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		Authorization: payment.Handle{ID: authz.ID, ClientSecret: authz.ClientSecret},
		ServerTotal:   o.Total,
	}, nil
}

// Orders returns how many orders were created
func (m *MockOrderService) Orders() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func (m *MockOrderService) UpdateStatus(_ context.Context, orderID string, req order.StatusUpdateRequest) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.updates = append(m.updates, req)
	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	o, ok := m.byID[orderID]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o.Status = req.Status
	if req.Status == order.OrderStatusPaid {
		now := time.Now().UTC()
		o.PaidAt = &now
	}
	out := *o
	return &out, nil
}

func (m *MockOrderService) GetUserOrder(_ context.Context, id, userID string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.byID[id]
	if !ok || !o.Owner(userID) {
		return nil, order.ErrOrderNotFound
	}
	out := *o
	return &out, nil
}

func (m *MockOrderService) ListOrders(_ context.Context, userID string, page, limit int) (*order.OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orders []order.Order
	for _, o := range m.byID {
		if o.Owner(userID) {
			orders = append(orders, *o)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].OrderNumber < orders[j].OrderNumber })
	return &order.OrderResponse{
		Orders:     orders,
		Pagination: order.Pagination{Page: page, Limit: limit, Total: int64(len(orders))},
	}, nil
}

func (m *MockOrderService) CancelOrder(ctx context.Context, id, userID, reason string) (*order.Order, error) {
	if _, err := m.GetUserOrder(ctx, id, userID); err != nil {
		return nil, err
	}
	return m.UpdateStatus(ctx, id, order.StatusUpdateRequest{Status: order.OrderStatusCancelled, Reason: reason, By: userID})
}

// Put stores o as is
func (m *MockOrderService) Put(o *order.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[o.ID] = o
}

// StatusOf returns the stored status of an order
func (m *MockOrderService) StatusOf(id string) order.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byID[id].Status
}

// StatusUpdates returns every status update received
func (m *MockOrderService) StatusUpdates() []order.StatusUpdateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]order.StatusUpdateRequest(nil), m.updates...)
}

// MockReceipts renders receipts without wkhtmltopdf
type MockReceipts struct{}

func (MockReceipts) RenderReceiptHTML(o *order.Order) (string, error) {
	return "<h1>Receipt " + o.OrderNumber + "</h1>", nil
}

func (MockReceipts) GenerateReceipt(o *order.Order) (*bytes.Buffer, error) {
	return bytes.NewBufferString("%PDF-1.4 " + o.OrderNumber), nil
}
