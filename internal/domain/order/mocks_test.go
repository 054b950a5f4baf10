package order

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/your-org/seasonal-storefront/internal/domain/payment"
)

// memoryRepository implements Repository in memory for testing
type memoryRepository struct {
	mu        sync.Mutex
	orders    map[string]*Order
	events    []OrderEvent
	nextID    uint
	CreateErr error
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{orders: make(map[string]*Order)}
}

func copyOrder(o *Order) *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	c.StatusHistory = append([]OrderStatusHistory(nil), o.StatusHistory...)
	return &c
}

func (m *memoryRepository) Create(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	for _, o := range m.orders {
		if o.IdempotencyKey == order.IdempotencyKey {
			return ErrDuplicateOrder
		}
	}
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *memoryRepository) FindByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (m *memoryRepository) FindByIdempotencyKey(_ context.Context, key string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.IdempotencyKey == key {
			return copyOrder(o), nil
		}
	}
	return nil, ErrOrderNotFound
}

func (m *memoryRepository) ReleaseIdempotencyKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		o.IdempotencyKey = o.IdempotencyKey + ":" + o.ID
	}
	return nil
}

func (m *memoryRepository) ListByUser(_ context.Context, userID string, page, limit int) ([]Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			all = append(all, *copyOrder(o))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start := (page - 1) * limit
	if start > len(all) {
		start = len(all)
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], int64(len(all)), nil
}

func (m *memoryRepository) SetAuthorization(_ context.Context, id, intentID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return ErrOrderNotFound
	}
	o.PaymentIntentID = intentID
	o.AuthorizationSecret = secret
	return nil
}

func (m *memoryRepository) SetPaymentStatus(_ context.Context, id string, status PaymentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok && o.Status == OrderStatusPendingPayment {
		o.PaymentStatus = status
	}
	return nil
}

func (m *memoryRepository) Transition(_ context.Context, id string, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return false, ErrOrderNotFound
	}
	if o.Status != t.From {
		return false, nil
	}
	o.Status = t.To
	o.PaymentStatus = t.PaymentStatus
	if t.PaymentIntentID != "" {
		o.PaymentIntentID = t.PaymentIntentID
	}
	if t.PaidAt != nil {
		o.PaidAt = t.PaidAt
	}
	if t.CancelReason != "" {
		o.CancelReason = t.CancelReason
	}
	o.AddStatusHistory(t.To, t.Comment, t.By, t.At)
	if t.Event != nil {
		m.nextID++
		ev := *t.Event
		ev.ID = m.nextID
		m.events = append(m.events, ev)
	}
	return true, nil
}

func (m *memoryRepository) ClaimNotification(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.Status != OrderStatusPaid || o.NotifiedAt != nil {
		return false, nil
	}
	o.NotifiedAt = &at
	return true, nil
}

func (m *memoryRepository) FindStalePending(_ context.Context, before time.Time, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.Status == OrderStatusPendingPayment && o.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (m *memoryRepository) FindUnnotifiedPaid(_ context.Context, limit int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.Status == OrderStatusPaid && o.NotifiedAt == nil && len(out) < limit {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (m *memoryRepository) UnpublishedEvents(_ context.Context, limit int) ([]OrderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OrderEvent
	for _, ev := range m.events {
		if ev.PublishedAt == nil && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *memoryRepository) MarkEventPublished(_ context.Context, id uint, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].PublishedAt = &at
		}
	}
	return nil
}

// setStatus forces a stored order into a status, bypassing the service
func (m *memoryRepository) setStatus(id string, status OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Status = status
}

// age moves an order's creation time into the past
func (m *memoryRepository) age(id string, by time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].CreatedAt = m.orders[id].CreatedAt.Add(-by)
}

// MockProcessor wraps the sandbox and lets tests inject failures
type MockProcessor struct {
	*payment.Sandbox
	CreateErr    error
	GetErr       error
	CreateCalls  int
	CancelCalls  int
	mu           sync.Mutex
}

func newMockProcessor() *MockProcessor {
	return &MockProcessor{Sandbox: payment.NewSandbox()}
}

func (m *MockProcessor) CreateAuthorization(ctx context.Context, req payment.CreateAuthorizationRequest, key string) (*payment.Authorization, error) {
	m.mu.Lock()
	m.CreateCalls++
	err := m.CreateErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Sandbox.CreateAuthorization(ctx, req, key)
}

func (m *MockProcessor) GetAuthorization(ctx context.Context, id string) (*payment.Authorization, error) {
	m.mu.Lock()
	err := m.GetErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.Sandbox.GetAuthorization(ctx, id)
}

func (m *MockProcessor) CancelAuthorization(ctx context.Context, id string) (*payment.Authorization, error) {
	m.mu.Lock()
	m.CancelCalls++
	m.mu.Unlock()
	return m.Sandbox.CancelAuthorization(ctx, id)
}

// MockNotifier records confirmations
type MockNotifier struct {
	mu       sync.Mutex
	Notified []string
	Err      error
}

func (m *MockNotifier) NotifyOrderConfirmed(_ context.Context, order *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified = append(m.Notified, order.ID)
	return m.Err
}

func (m *MockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Notified)
}

// MockPublisher records published events
type MockPublisher struct {
	mu        sync.Mutex
	Published []OrderEvent
	Err       error
}

func (m *MockPublisher) Publish(_ context.Context, event OrderEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Published = append(m.Published, event)
	return nil
}

var errProcessorDown = errors.New("connection refused")
