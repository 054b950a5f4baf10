// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"log"

	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db *gorm.DB
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB) *Migration {
	return &Migration{
		db: db,
	}
}

// RunAutoMigrations creates or alters the order tables
func (m *Migration) RunAutoMigrations() error {
	log.Println("🔄 Running database auto-migrations...")

	// parents before children
	models := []interface{}{
		&order.Order{},
		&order.OrderItem{},
		&order.OrderStatusHistory{},
		&order.OrderEvent{},
	}

	for _, model := range models {
		log.Printf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	log.Println("✅ Database auto-migrations completed successfully")
	return nil
}

// Indexes lists the statements CreateIndexes runs
var Indexes = []string{
	// Order indexes
	"CREATE INDEX IF NOT EXISTS idx_orders_user_created ON orders(user_id, created_at DESC)",
	"CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at)",
	"CREATE INDEX IF NOT EXISTS idx_orders_paid_unnotified ON orders(status) WHERE notified_at IS NULL",
	"CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(email)",

	// Order items indexes
	"CREATE INDEX IF NOT EXISTS idx_order_items_product ON order_items(product_id)",

	// Order status history indexes
	"CREATE INDEX IF NOT EXISTS idx_order_status_history_order ON order_status_history(order_id, created_at DESC)",

	// Outbox
	"CREATE INDEX IF NOT EXISTS idx_order_events_unpublished ON order_events(id) WHERE published_at IS NULL",
}

// CreateIndexes creates the query-specific indexes AutoMigrate cannot express
func (m *Migration) CreateIndexes() error {
	log.Println("🔄 Creating additional database indexes...")

	successCount := 0
	failCount := 0

	for _, indexSQL := range Indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			log.Printf("⚠️ Failed to create index: %v", err)
			failCount++
		} else {
			successCount++
		}
	}

	log.Printf("✅ Created %d indexes successfully (%d failed)", successCount, failCount)
	if failCount > 0 {
		return fmt.Errorf("%d of %d indexes could not be created", failCount, len(Indexes))
	}
	return nil
}

// GetTableInfo logs row counts for each table
func (m *Migration) GetTableInfo() {
	for _, table := range []string{"orders", "order_items", "order_status_history", "order_events"} {
		var count int64
		if err := m.db.Table(table).Count(&count).Error; err != nil {
			log.Printf("⚠️ Could not count %s: %v", table, err)
			continue
		}
		log.Printf("📊 %s: %d rows", table, count)
	}
}
