// cmd/reconcile/main.go runs one reconciliation pass and exits. It is meant
// for cron jobs and for draining the outbox by hand.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/catalog"
	"github.com/your-org/seasonal-storefront/internal/domain/notification"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
	"github.com/your-org/seasonal-storefront/internal/domain/pricing"
	"github.com/your-org/seasonal-storefront/internal/infrastructure/database/postgres"
	"github.com/your-org/seasonal-storefront/internal/infrastructure/events"
	"github.com/your-org/seasonal-storefront/internal/pkg/email"
	"github.com/your-org/seasonal-storefront/internal/pkg/logger"
	"github.com/your-org/seasonal-storefront/internal/pkg/sms"
)

func main() {
	timeout := flag.Duration("timeout", 5*time.Minute, "maximum duration of the pass")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.New(cfg)

	db, err := postgres.NewConnection(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.Payment.KeyID == "" || cfg.Payment.KeySecret == "" {
		log.Fatal("Reconciliation needs PAYMENT_KEY_ID and PAYMENT_KEY_SECRET")
	}

	cat := catalog.Default()
	rules, err := pricing.NewRuleSet(cfg.Checkout.TaxRate, cat.TaxExemptIDs(), cfg.Checkout.TaxExemptProductIDs)
	if err != nil {
		log.Fatalf("Invalid pricing rules: %v", err)
	}

	var smsSender notification.SMSSender
	if client := sms.NewClient(cfg.Notification.SMS); client != nil {
		smsSender = client
	}
	notifier := notification.NewDispatcher(email.NewService(cfg.Notification.Email, log), smsSender, cfg.App.Name, cfg.App.BaseURL, log)

	svc := order.NewService(
		order.NewGormRepository(db.GetDB()),
		cat,
		rules,
		payment.NewClient(cfg.Payment, log),
		notifier,
		cfg.Checkout.Currency,
		log,
	)

	publisher := events.NewPublisher(cfg.Events, log)
	if closer, ok := publisher.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report := order.NewReconciler(svc, publisher, cfg.Reconcile, log).RunOnce(ctx)
	svc.Wait()

	log.WithFields(logrus.Fields{
		"settled":   report.Settled,
		"failed":    report.Failed,
		"abandoned": report.Abandoned,
		"notified":  report.Notified,
		"published": report.Published,
	}).Info("✅ Reconciliation pass completed")
}
