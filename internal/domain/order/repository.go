package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

var errNotApplied = errors.New("transition not applied")

// Transition is a conditional status change. It only applies while the order
// is still in From.
type Transition struct {
	From            OrderStatus
	To              OrderStatus
	PaymentStatus   PaymentStatus
	PaymentIntentID string
	PaidAt          *time.Time
	CancelReason    string
	Comment         string
	By              string
	At              time.Time
	Event           *OrderEvent
}

// Repository persists orders, their history and the outbox
type Repository interface {
	Create(ctx context.Context, order *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	ReleaseIdempotencyKey(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, int64, error)
	SetAuthorization(ctx context.Context, id, intentID, secret string) error
	SetPaymentStatus(ctx context.Context, id string, status PaymentStatus) error
	Transition(ctx context.Context, id string, t Transition) (bool, error)
	ClaimNotification(ctx context.Context, id string, at time.Time) (bool, error)
	FindStalePending(ctx context.Context, before time.Time, limit int) ([]Order, error)
	FindUnnotifiedPaid(ctx context.Context, limit int) ([]Order, error)
	UnpublishedEvents(ctx context.Context, limit int) ([]OrderEvent, error)
	MarkEventPublished(ctx context.Context, id uint, at time.Time) error
}

// GormRepository is the postgres-backed Repository
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a repository on db
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Create stores the order with its items and history in one transaction
func (r *GormRepository) Create(ctx context.Context, order *Order) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateOrder
	}
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *GormRepository) FindByID(ctx context.Context, id string) (*Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *GormRepository) FindByIdempotencyKey(ctx context.Context, key string) (*Order, error) {
	return r.findOne(ctx, "idempotency_key = ?", key)
}

func (r *GormRepository) findOne(ctx context.Context, query string, args ...interface{}) (*Order, error) {
	var order Order
	result := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Where(query, args...).
		First(&order)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", result.Error)
	}
	return &order, nil
}

// ReleaseIdempotencyKey detaches a closed order from its key so a new order
// can be created for the same cart.
func (r *GormRepository) ReleaseIdempotencyKey(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", id).
		Update("idempotency_key", gorm.Expr("idempotency_key || ':' || id"))
	if result.Error != nil {
		return fmt.Errorf("failed to release idempotency key: %w", result.Error)
	}
	return nil
}

func (r *GormRepository) ListByUser(ctx context.Context, userID string, page, limit int) ([]Order, int64, error) {
	var orders []Order
	var total int64

	query := r.db.WithContext(ctx).Model(&Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	offset := (page - 1) * limit
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to retrieve orders: %w", err)
	}
	return orders, total, nil
}

func (r *GormRepository) SetAuthorization(ctx context.Context, id, intentID, secret string) error {
	result := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"payment_intent_id":    intentID,
			"authorization_secret": secret,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to store authorization: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetPaymentStatus only touches orders still awaiting payment
func (r *GormRepository) SetPaymentStatus(ctx context.Context, id string, status PaymentStatus) error {
	result := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ?", id, OrderStatusPendingPayment).
		Update("payment_status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update payment status: %w", result.Error)
	}
	return nil
}

func (r *GormRepository) Transition(ctx context.Context, id string, t Transition) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":         t.To,
			"payment_status": t.PaymentStatus,
		}
		if t.PaymentIntentID != "" {
			updates["payment_intent_id"] = t.PaymentIntentID
		}
		if t.PaidAt != nil {
			updates["paid_at"] = *t.PaidAt
		}
		if t.CancelReason != "" {
			updates["cancel_reason"] = t.CancelReason
		}

		result := tx.Model(&Order{}).
			Where("id = ? AND status = ?", id, t.From).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update order status: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return errNotApplied
		}

		history := OrderStatusHistory{
			OrderID:   id,
			Status:    t.To,
			Comment:   t.Comment,
			CreatedBy: t.By,
			CreatedAt: t.At,
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("failed to create status history: %w", err)
		}

		if t.Event != nil {
			if err := tx.Create(t.Event).Error; err != nil {
				return fmt.Errorf("failed to write outbox event: %w", err)
			}
		}
		return nil
	})

	if errors.Is(err, errNotApplied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ClaimNotification sets notified_at once. Only the first caller gets true.
func (r *GormRepository) ClaimNotification(ctx context.Context, id string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ? AND status = ? AND notified_at IS NULL", id, OrderStatusPaid).
		Update("notified_at", at)
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim notification: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *GormRepository) FindStalePending(ctx context.Context, before time.Time, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", OrderStatusPendingPayment, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pending orders: %w", err)
	}
	return orders, nil
}

func (r *GormRepository) FindUnnotifiedPaid(ctx context.Context, limit int) ([]Order, error) {
	var orders []Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND notified_at IS NULL", OrderStatusPaid).
		Order("paid_at ASC").
		Limit(limit).
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find unnotified orders: %w", err)
	}
	return orders, nil
}

func (r *GormRepository) UnpublishedEvents(ctx context.Context, limit int) ([]OrderEvent, error) {
	var events []OrderEvent
	err := r.db.WithContext(ctx).
		Where("published_at IS NULL").
		Order("id ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch outbox events: %w", err)
	}
	return events, nil
}

func (r *GormRepository) MarkEventPublished(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&OrderEvent{}).
		Where("id = ?", id).
		Update("published_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to mark event published: %w", err)
	}
	return nil
}
