// internal/domain/order/entity.go
package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the order status
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

func (s OrderStatus) valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPaid, OrderStatusFailed, OrderStatusCancelled:
		return true
	}
	return false
}

// PaymentStatus represents payment status
type PaymentStatus string

const (
	PaymentStatusPending        PaymentStatus = "pending"
	PaymentStatusRequiresAction PaymentStatus = "requires_action"
	PaymentStatusSucceeded      PaymentStatus = "succeeded"
	PaymentStatusFailed         PaymentStatus = "failed"
	PaymentStatusCancelled      PaymentStatus = "cancelled"
)

// Outbox event types
const (
	EventOrderPaid      = "order.paid"
	EventOrderFailed    = "order.failed"
	EventOrderCancelled = "order.cancelled"
)

// Order represents the order entity
type Order struct {
	ID             string        `gorm:"primaryKey;size:36" json:"id"`
	OrderNumber    string        `gorm:"uniqueIndex;not null;size:50" json:"order_number"`
	UserID         string        `gorm:"index;not null;size:64" json:"user_id"`
	IdempotencyKey string        `gorm:"uniqueIndex;not null;size:128" json:"-"`
	Status         OrderStatus   `gorm:"not null;default:'pending_payment';size:32" json:"status"`
	PaymentStatus  PaymentStatus `gorm:"not null;default:'pending';size:32" json:"payment_status"`

	// Customer
	CustomerName string `gorm:"size:200" json:"customer_name"`
	Email        string `gorm:"not null;size:255" json:"email"`
	Phone        string `gorm:"size:32" json:"phone"`

	// Financial Information
	Subtotal decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Tax      decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"tax"`
	Shipping decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"shipping"`
	Total    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	Currency string          `gorm:"size:3;default:'USD'" json:"currency"`

	BillingAddress Address `gorm:"embedded;embeddedPrefix:billing_" json:"billing_address"`

	// Processor authorization
	PaymentIntentID     string `gorm:"index;size:255" json:"payment_intent_id,omitempty"`
	AuthorizationSecret string `gorm:"size:255" json:"-"`

	CancelReason string `gorm:"type:text" json:"cancel_reason,omitempty"`

	// Timestamps
	PaidAt     *time.Time `json:"paid_at"`
	NotifiedAt *time.Time `gorm:"index" json:"notified_at"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	// Relationships
	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem is a priced cart line frozen into an order
type OrderItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     string          `gorm:"not null;index;size:36" json:"order_id"`
	ProductID   int64           `gorm:"not null;index" json:"product_id"`
	DisplayName string          `gorm:"not null;size:255" json:"display_name"`
	ImageRef    string          `gorm:"size:500" json:"image_ref"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	LineTotal   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"line_total"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderStatusHistory tracks order status changes
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   string      `gorm:"not null;index;size:36" json:"order_id"`
	Status    OrderStatus `gorm:"not null;size:32" json:"status"`
	Comment   string      `gorm:"type:text" json:"comment"`
	CreatedBy string      `gorm:"size:64" json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// OrderEvent is an outbox row relayed to the event bus by the reconciler
type OrderEvent struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	OrderID     string     `gorm:"not null;index;size:36" json:"order_id"`
	Type        string     `gorm:"not null;size:64" json:"type"`
	Payload     string     `gorm:"type:jsonb;not null" json:"payload"`
	PublishedAt *time.Time `gorm:"index" json:"published_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Address represents the billing address (embedded in Order)
type Address struct {
	FullName     string `gorm:"size:200" json:"full_name"`
	AddressLine1 string `gorm:"size:255" json:"address_line1"`
	City         string `gorm:"size:100" json:"city"`
	State        string `gorm:"size:100" json:"state"`
	PostalCode   string `gorm:"size:20" json:"postal_code"`
	Country      string `gorm:"size:2" json:"country"`
}

// TableName overrides
func (Order) TableName() string              { return "orders" }
func (OrderItem) TableName() string          { return "order_items" }
func (OrderStatusHistory) TableName() string { return "order_status_history" }
func (OrderEvent) TableName() string         { return "order_events" }

// Business methods for Order

// generateOrderNumber formats ORD-YYYYMMDD-XXXXXXXX from the creation date and id
func generateOrderNumber(id string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(id, "-", ""))
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	return fmt.Sprintf("ORD-%s-%s", at.Format("20060102"), suffix)
}

func newOrderID() string {
	return uuid.NewString()
}

// IsTerminal reports whether no further status change is allowed
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusPaid ||
		o.Status == OrderStatusFailed ||
		o.Status == OrderStatusCancelled
}

// CanBeCancelled checks if order can be cancelled
func (o *Order) CanBeCancelled() bool {
	return o.Status == OrderStatusPendingPayment
}

// AddStatusHistory adds a new status change to history
func (o *Order) AddStatusHistory(status OrderStatus, comment, createdBy string, at time.Time) {
	o.StatusHistory = append(o.StatusHistory, OrderStatusHistory{
		OrderID:   o.ID,
		Status:    status,
		Comment:   comment,
		CreatedBy: createdBy,
		CreatedAt: at,
	})
}

// Owner reports whether the order belongs to userID
func (o *Order) Owner(userID string) bool {
	return userID != "" && o.UserID == userID
}
