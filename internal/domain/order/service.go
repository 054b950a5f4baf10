// internal/domain/order/service.go
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
	"github.com/your-org/seasonal-storefront/internal/domain/catalog"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/domain/pricing"
)

// PriceSource resolves authoritative unit prices
type PriceSource interface {
	Lookup(productID int64, displayName string) (catalog.Quote, error)
}

// Notifier delivers the order confirmation to the customer
type Notifier interface {
	NotifyOrderConfirmed(ctx context.Context, order *Order) error
}

// Service handles order business logic
type Service struct {
	repo      Repository
	prices    PriceSource
	rules     pricing.RuleSet
	processor payment.Processor
	notifier  Notifier
	currency  string
	logger    *logrus.Logger
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewService creates a new order service
func NewService(repo Repository, prices PriceSource, rules pricing.RuleSet, processor payment.Processor, notifier Notifier, currency string, logger *logrus.Logger) *Service {
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		repo:      repo,
		prices:    prices,
		rules:     rules,
		processor: processor,
		notifier:  notifier,
		currency:  currency,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrderRequest is what the checkout sends to open an order
type CreateOrderRequest struct {
	UserID         string          `json:"-"`
	CustomerName   string          `json:"customer_name" binding:"required"`
	Email          string          `json:"email" binding:"required,email"`
	Phone          string          `json:"phone"`
	Lines          cart.Lines      `json:"lines" binding:"required,min=1"`
	Billing        Address         `json:"billing_address" binding:"required"`
	ClientTotal    decimal.Decimal `json:"client_total" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key" binding:"required,max=128"`
}

// CreateOrderResult carries what the client needs to confirm the payment
type CreateOrderResult struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Status        OrderStatus     `json:"status"`
	Authorization payment.Handle  `json:"authorization"`
	ServerTotal   decimal.Decimal `json:"server_total"`
	Existing      bool            `json:"existing"`
}

// StatusUpdateRequest is a status write-back
type StatusUpdateRequest struct {
	Status          OrderStatus `json:"status" binding:"required"`
	AuthorizationID string      `json:"authorization_id"`
	Reason          string      `json:"reason"`
	By              string      `json:"-"`
}

// OrderResponse represents order response with pagination
type OrderResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// CreateOrder opens an order for a cart snapshot. Replays with the same
// idempotency key return the existing order. The server reprices every line
// and refuses to create anything when the client total disagrees.
func (s *Service) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResult, error) {
	if req.IdempotencyKey == "" || req.UserID == "" || len(req.Lines) == 0 {
		return nil, ErrInvalidRequest
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
	switch {
	case err == nil && existing.UserID != req.UserID:
		return nil, fmt.Errorf("%w: idempotency key belongs to another user", ErrInvalidRequest)
	case err == nil && (existing.Status == OrderStatusFailed || existing.Status == OrderStatusCancelled):
		if err := s.repo.ReleaseIdempotencyKey(ctx, existing.ID); err != nil {
			return nil, err
		}
	case err == nil:
		return s.replay(ctx, existing)
	case !errors.Is(err, ErrOrderNotFound):
		return nil, err
	}

	items, breakdown, err := s.reprice(req.Lines)
	if err != nil {
		return nil, err
	}
	if !req.ClientTotal.Equal(breakdown.Total) {
		s.logger.WithFields(logrus.Fields{
			"user_id":      req.UserID,
			"client_total": req.ClientTotal.StringFixed(2),
			"server_total": breakdown.Total.StringFixed(2),
		}).Warn("Rejecting order with mismatched total")
		return nil, ErrPriceMismatch
	}

	now := s.now()
	order := &Order{
		ID:             newOrderID(),
		UserID:         req.UserID,
		IdempotencyKey: req.IdempotencyKey,
		Status:         OrderStatusPendingPayment,
		PaymentStatus:  PaymentStatusPending,
		CustomerName:   req.CustomerName,
		Email:          req.Email,
		Phone:          req.Phone,
		Subtotal:       breakdown.Subtotal,
		Tax:            breakdown.Tax,
		Shipping:       breakdown.Shipping,
		Total:          breakdown.Total,
		Currency:       s.currency,
		BillingAddress: req.Billing,
		Items:          items,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	order.OrderNumber = generateOrderNumber(order.ID, now)
	for i := range order.Items {
		order.Items[i].OrderID = order.ID
		order.Items[i].CreatedAt = now
	}
	order.AddStatusHistory(OrderStatusPendingPayment, "Order created", req.UserID, now)

	if err := s.repo.Create(ctx, order); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			// Lost a race with a concurrent submission of the same cart.
			existing, findErr := s.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
			if findErr != nil {
				return nil, findErr
			}
			return s.replay(ctx, existing)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total":        order.Total.StringFixed(2),
	}).Info("Order created")

	if err := s.ensureAuthorization(ctx, order); err != nil {
		return nil, err
	}
	return resultFor(order, false), nil
}

func (s *Service) replay(ctx context.Context, order *Order) (*CreateOrderResult, error) {
	if order.PaymentIntentID == "" && order.Status == OrderStatusPendingPayment {
		if err := s.ensureAuthorization(ctx, order); err != nil {
			return nil, err
		}
	}
	return resultFor(order, true), nil
}

func resultFor(order *Order, existing bool) *CreateOrderResult {
	return &CreateOrderResult{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Authorization: payment.Handle{
			ID:           order.PaymentIntentID,
			ClientSecret: order.AuthorizationSecret,
		},
		ServerTotal: order.Total,
		Existing:    existing,
	}
}

// ensureAuthorization creates the processor intent, keyed by order id so a
// retry after a lost response finds the same intent.
func (s *Service) ensureAuthorization(ctx context.Context, order *Order) error {
	auth, err := s.processor.CreateAuthorization(ctx, payment.CreateAuthorizationRequest{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      pricing.MinorUnits(order.Total),
		Currency:    order.Currency,
		Email:       order.Email,
	}, order.ID)
	if err != nil {
		return fmt.Errorf("failed to authorize order %s: %w", order.ID, err)
	}

	if err := s.repo.SetAuthorization(ctx, order.ID, auth.ID, auth.ClientSecret); err != nil {
		return err
	}
	order.PaymentIntentID = auth.ID
	order.AuthorizationSecret = auth.ClientSecret
	return nil
}

// reprice rebuilds the lines from the catalog, keeping only the quantities
func (s *Service) reprice(lines cart.Lines) ([]OrderItem, pricing.Breakdown, error) {
	priced := make(cart.Lines, 0, len(lines))
	items := make([]OrderItem, 0, len(lines))

	for _, l := range lines {
		if l.Quantity < 1 {
			return nil, pricing.Breakdown{}, fmt.Errorf("%w: quantity %d for product %d", ErrInvalidRequest, l.Quantity, l.ProductID)
		}
		quote, err := s.prices.Lookup(l.ProductID, l.DisplayName)
		if err != nil {
			return nil, pricing.Breakdown{}, fmt.Errorf("%w: %v", ErrUnknownProduct, err)
		}

		line := cart.Line{
			ProductID:   l.ProductID,
			DisplayName: quote.DisplayName,
			UnitPrice:   quote.UnitPrice,
			ImageRef:    quote.ImageRef,
			Quantity:    l.Quantity,
		}
		priced = append(priced, line)
		items = append(items, OrderItem{
			ProductID:   line.ProductID,
			DisplayName: line.DisplayName,
			ImageRef:    line.ImageRef,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			LineTotal:   line.Total(),
		})
	}

	return items, pricing.Price(priced, s.rules), nil
}

// UpdateStatus applies a status write-back. Repeating a transition that
// already happened is a no-op; contradicting a terminal status is an error.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, req StatusUpdateRequest) (*Order, error) {
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !req.Status.valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, req.Status)
	}
	if order.Status == req.Status {
		return order, nil
	}
	if !isValidStatusTransition(order.Status, req.Status) {
		return nil, fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, order.Status, req.Status)
	}

	switch req.Status {
	case OrderStatusPaid:
		return s.markPaid(ctx, order, req)
	case OrderStatusFailed:
		return s.markFailed(ctx, order, req)
	case OrderStatusCancelled:
		return s.cancel(ctx, order, req)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, req.Status)
	}
}

func (s *Service) markPaid(ctx context.Context, order *Order, req StatusUpdateRequest) (*Order, error) {
	authID := req.AuthorizationID
	if authID == "" {
		authID = order.PaymentIntentID
	}
	if authID == "" {
		return nil, fmt.Errorf("%w: no authorization on order", ErrPaymentNotSettled)
	}
	if order.PaymentIntentID != "" && authID != order.PaymentIntentID {
		return nil, ErrAuthorizationMismatch
	}

	auth, err := s.processor.GetAuthorization(ctx, authID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify authorization: %w", err)
	}
	if auth.OrderID != order.ID || auth.Amount != pricing.MinorUnits(order.Total) {
		return nil, ErrAuthorizationMismatch
	}
	if auth.Status != payment.StatusSucceeded {
		return nil, fmt.Errorf("%w: status %s", ErrPaymentNotSettled, auth.Status)
	}

	now := s.now()
	event, err := newEvent(order, EventOrderPaid, now)
	if err != nil {
		return nil, err
	}

	updated, err := s.transition(ctx, order, Transition{
		From:            OrderStatusPendingPayment,
		To:              OrderStatusPaid,
		PaymentStatus:   PaymentStatusSucceeded,
		PaymentIntentID: auth.ID,
		PaidAt:          &now,
		Comment:         "Payment confirmed",
		By:              req.By,
		At:              now,
		Event:           event,
	})
	if err != nil {
		return nil, err
	}

	s.notifyAsync(updated.ID)
	return updated, nil
}

func (s *Service) markFailed(ctx context.Context, order *Order, req StatusUpdateRequest) (*Order, error) {
	now := s.now()
	event, err := newEvent(order, EventOrderFailed, now)
	if err != nil {
		return nil, err
	}

	comment := "Payment failed"
	if req.Reason != "" {
		comment = fmt.Sprintf("Payment failed: %s", req.Reason)
	}
	return s.transition(ctx, order, Transition{
		From:          OrderStatusPendingPayment,
		To:            OrderStatusFailed,
		PaymentStatus: PaymentStatusFailed,
		Comment:       comment,
		By:            req.By,
		At:            now,
		Event:         event,
	})
}

func (s *Service) cancel(ctx context.Context, order *Order, req StatusUpdateRequest) (*Order, error) {
	if order.PaymentIntentID != "" {
		auth, err := s.processor.CancelAuthorization(ctx, order.PaymentIntentID)
		switch {
		case errors.Is(err, payment.ErrAuthorizationNotFound):
		case err != nil:
			return nil, fmt.Errorf("failed to cancel authorization: %w", err)
		case auth.Status == payment.StatusSucceeded:
			return nil, ErrPaymentCaptured
		}
	}

	now := s.now()
	event, err := newEvent(order, EventOrderCancelled, now)
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "cancelled"
	}
	return s.transition(ctx, order, Transition{
		From:          OrderStatusPendingPayment,
		To:            OrderStatusCancelled,
		PaymentStatus: PaymentStatusCancelled,
		CancelReason:  reason,
		Comment:       fmt.Sprintf("Order cancelled: %s", reason),
		By:            req.By,
		At:            now,
		Event:         event,
	})
}

// transition applies t and resolves a lost race by re-reading the order
func (s *Service) transition(ctx context.Context, order *Order, t Transition) (*Order, error) {
	applied, err := s.repo.Transition(ctx, order.ID, t)
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if !applied && current.Status != t.To {
		return nil, fmt.Errorf("%w: from %s to %s", ErrInvalidTransition, current.Status, t.To)
	}

	if applied {
		s.logger.WithFields(logrus.Fields{
			"order_id": order.ID,
			"from":     t.From,
			"to":       t.To,
		}).Info("Order status updated")
	}
	return current, nil
}

func newEvent(order *Order, eventType string, at time.Time) (*OrderEvent, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      order.UserID,
		"total":        order.Total.StringFixed(2),
		"currency":     order.Currency,
		"occurred_at":  at,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	return &OrderEvent{
		OrderID:   order.ID,
		Type:      eventType,
		Payload:   string(payload),
		CreatedAt: at,
	}, nil
}

func (s *Service) notifyAsync(orderID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.NotifyPaid(ctx, orderID)
	}()
}

// NotifyPaid sends the confirmation for a paid order at most once
func (s *Service) NotifyPaid(ctx context.Context, orderID string) bool {
	log := s.logger.WithField("order_id", orderID)

	claimed, err := s.repo.ClaimNotification(ctx, orderID, s.now())
	if err != nil {
		log.WithError(err).Error("Failed to claim order notification")
		return false
	}
	if !claimed {
		return false
	}

	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		log.WithError(err).Error("Failed to load order for notification")
		return false
	}

	if err := s.notifier.NotifyOrderConfirmed(ctx, order); err != nil {
		log.WithError(err).Warn("Order confirmation delivery failed")
	}
	return true
}

// Wait blocks until in-flight notifications finish
func (s *Service) Wait() {
	s.wg.Wait()
}

// GetOrder retrieves a single order by ID
func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.repo.FindByID(ctx, id)
}

// GetUserOrder retrieves an order only if it belongs to userID
func (s *Service) GetUserOrder(ctx context.Context, id, userID string) (*Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.Owner(userID) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns a user's order history, newest first
func (s *Service) ListOrders(ctx context.Context, userID string, page, limit int) (*OrderResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	orders, total, err := s.repo.ListByUser(ctx, userID, page, limit)
	if err != nil {
		return nil, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return &OrderResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
			HasPrev:    page > 1,
		},
	}, nil
}

// CancelOrder cancels a pending order on behalf of its owner
func (s *Service) CancelOrder(ctx context.Context, id, userID, reason string) (*Order, error) {
	order, err := s.GetUserOrder(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if !order.CanBeCancelled() && order.Status != OrderStatusCancelled {
		return nil, fmt.Errorf("%w: order cannot be cancelled in status %s", ErrInvalidTransition, order.Status)
	}
	return s.UpdateStatus(ctx, id, StatusUpdateRequest{
		Status: OrderStatusCancelled,
		Reason: strings.TrimSpace(reason),
		By:     userID,
	})
}

func isValidStatusTransition(from, to OrderStatus) bool {
	validTransitions := map[OrderStatus][]OrderStatus{
		OrderStatusPendingPayment: {
			OrderStatusPaid,
			OrderStatusFailed,
			OrderStatusCancelled,
		},
	}

	allowedStatuses, exists := validTransitions[from]
	if !exists {
		return false
	}

	for _, status := range allowedStatuses {
		if status == to {
			return true
		}
	}
	return false
}
