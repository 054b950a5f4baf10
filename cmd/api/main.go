// cmd/api/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
	"github.com/your-org/seasonal-storefront/internal/domain/catalog"
	"github.com/your-org/seasonal-storefront/internal/domain/checkout"
	"github.com/your-org/seasonal-storefront/internal/domain/notification"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/domain/pricing"
	"github.com/your-org/seasonal-storefront/internal/infrastructure/database/postgres"
	"github.com/your-org/seasonal-storefront/internal/infrastructure/database/redis"
	"github.com/your-org/seasonal-storefront/internal/infrastructure/events"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http/handlers"
	"github.com/your-org/seasonal-storefront/internal/interfaces/http/routes"
	"github.com/your-org/seasonal-storefront/internal/pkg/email"
	"github.com/your-org/seasonal-storefront/internal/pkg/logger"
	"github.com/your-org/seasonal-storefront/internal/pkg/orderclient"
	"github.com/your-org/seasonal-storefront/internal/pkg/pdf"
	"github.com/your-org/seasonal-storefront/internal/pkg/sms"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg)
	log.Infof("🚀 Starting %s v%s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Environment)

	// Connect to database
	db, err := postgres.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Connect to Redis
	redisClient, err := redis.NewConnection(cfg, log)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()

	// Health check
	if err := db.Health(); err != nil {
		log.Fatalf("Database health check failed: %v", err)
	}

	if err := redisClient.Health(context.Background()); err != nil {
		log.Fatalf("Redis health check failed: %v", err)
	}

	// Run database migrations
	migration := postgres.NewMigration(db.GetDB())

	if err := migration.RunAutoMigrations(); err != nil {
		log.Fatalf("Database migration failed: %v", err)
	}

	if err := migration.CreateIndexes(); err != nil {
		log.Warnf("Index creation failed: %v", err)
	}

	if cfg.IsDevelopment() {
		migration.GetTableInfo()
	}

	// Pricing
	cat := catalog.Default()
	rules, err := pricing.NewRuleSet(cfg.Checkout.TaxRate, cat.TaxExemptIDs(), cfg.Checkout.TaxExemptProductIDs)
	if err != nil {
		log.Fatalf("Invalid pricing rules: %v", err)
	}

	// Payment processor
	var processor payment.Processor
	if cfg.Payment.KeyID != "" && cfg.Payment.KeySecret != "" {
		processor = payment.NewClient(cfg.Payment, log)
	} else {
		log.Warn("No payment processor keys configured, using the sandbox processor")
		processor = payment.NewSandbox()
	}

	// Notifications
	var smsSender notification.SMSSender
	if client := sms.NewClient(cfg.Notification.SMS); client != nil {
		smsSender = client
	}
	notifier := notification.NewDispatcher(
		email.NewService(cfg.Notification.Email, log),
		smsSender,
		cfg.App.Name,
		cfg.App.BaseURL,
		log,
	)

	// Orders
	orderService := order.NewService(order.NewGormRepository(db.GetDB()), cat, rules, processor, notifier, cfg.Checkout.Currency, log)

	var checkoutOrders checkout.OrderService = orderService
	if cfg.Checkout.OrderServiceURL != "" {
		log.WithField("url", cfg.Checkout.OrderServiceURL).Info("Checkout uses the remote order service")
		checkoutOrders = orderclient.New(cfg.Checkout.OrderServiceURL, cfg.Checkout.StepTimeout)
	}
	orchestrator := checkout.NewOrchestrator(checkoutOrders, processor, rules, cfg.Checkout, log)

	// Carts
	rdb := redisClient.GetClient()
	registry := cart.NewRegistry(func(sessionID string) cart.Store {
		return cart.NewRedisStore(rdb, sessionID, cfg.Cart.SessionTTL, cfg.Cart.UndoTTL, log)
	}, cfg.Cart.IdleTTL, log)
	cartService := cart.NewService(registry, cat)

	// Background workers
	ctx, stop := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	workers.Add(2)
	go func() {
		defer workers.Done()
		registry.Run(ctx, cfg.Cart.SweepInterval)
	}()
	go func() {
		defer workers.Done()
		orchestrator.Run(ctx)
	}()

	publisher := events.NewPublisher(cfg.Events, log)
	if cfg.Reconcile.Enabled {
		reconciler := order.NewReconciler(orderService, publisher, cfg.Reconcile, log)
		workers.Add(1)
		go func() {
			defer workers.Done()
			reconciler.Run(ctx)
		}()
	}

	log.Info("✅ All systems operational!")

	// Create and start HTTP server
	server := http.NewServer(cfg, db.GetDB(), rdb, routes.Handlers{
		Product:  handlers.NewProductHandler(cat),
		Cart:     handlers.NewCartHandler(cartService, log),
		Checkout: handlers.NewCheckoutHandler(orchestrator, cartService, cfg, log),
		Order:    handlers.NewOrderHandler(orderService, log),
		Receipt:  handlers.NewReceiptHandler(orderService, pdf.NewService(cfg.App), log),
		Payment:  handlers.NewPaymentHandler(orderService, cfg.Payment.WebhookSecret, cfg.IsDevelopment(), log),
	}, log)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("👋 Shutting down gracefully...")

	// Give server 30 seconds to shutdown gracefully
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(shutdownCtx); err != nil {
		log.Errorf("Failed to shutdown HTTP server gracefully: %v", err)
	}

	stop()
	workers.Wait()
	orderService.Wait()

	if closer, ok := publisher.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Errorf("Failed to close event publisher: %v", err)
		}
	}

	log.Info("✅ Server shutdown completed")
}
