package order

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/payment"
)

// EventPublisher relays outbox events to the event bus
type EventPublisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// Report summarises one reconciliation pass
type Report struct {
	Settled   int `json:"settled"`
	Failed    int `json:"failed"`
	Abandoned int `json:"abandoned"`
	Notified  int `json:"notified"`
	Published int `json:"published"`
}

// Reconciler repairs orders whose status write-back never arrived, sends
// missed confirmations and drains the outbox.
type Reconciler struct {
	svc       *Service
	publisher EventPublisher
	cfg       config.ReconcileConfig
	logger    *logrus.Logger
}

// NewReconciler creates a reconciler working through svc
func NewReconciler(svc *Service, publisher EventPublisher, cfg config.ReconcileConfig, logger *logrus.Logger) *Reconciler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Reconciler{
		svc:       svc,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run reconciles on every tick until ctx is done
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs a single pass
func (r *Reconciler) RunOnce(ctx context.Context) Report {
	var report Report
	r.settlePending(ctx, &report)
	r.notifyPaid(ctx, &report)
	r.publishOutbox(ctx, &report)

	if report != (Report{}) {
		r.logger.WithFields(logrus.Fields{
			"settled":   report.Settled,
			"failed":    report.Failed,
			"abandoned": report.Abandoned,
			"notified":  report.Notified,
			"published": report.Published,
		}).Info("Reconciliation pass finished")
	}
	return report
}

func (r *Reconciler) settlePending(ctx context.Context, report *Report) {
	now := r.svc.now()
	orders, err := r.svc.repo.FindStalePending(ctx, now.Add(-r.cfg.PendingAfter), r.cfg.BatchSize)
	if err != nil {
		r.logger.WithError(err).Error("Failed to fetch pending orders")
		return
	}

	for i := range orders {
		o := &orders[i]
		log := r.logger.WithFields(logrus.Fields{"order_id": o.ID, "user_id": o.UserID})
		abandoned := r.cfg.AbandonAfter > 0 && o.CreatedAt.Before(now.Add(-r.cfg.AbandonAfter))

		if o.PaymentIntentID == "" {
			if abandoned {
				r.abandon(ctx, o, log, report)
			}
			continue
		}

		auth, err := r.svc.processor.GetAuthorization(ctx, o.PaymentIntentID)
		if err != nil && !errors.Is(err, payment.ErrAuthorizationNotFound) {
			log.WithError(err).Warn("Failed to read authorization")
			continue
		}
		if auth == nil {
			if abandoned {
				r.abandon(ctx, o, log, report)
			}
			continue
		}

		switch {
		case auth.Status == payment.StatusSucceeded:
			_, err := r.svc.UpdateStatus(ctx, o.ID, StatusUpdateRequest{
				Status:          OrderStatusPaid,
				AuthorizationID: auth.ID,
				By:              "reconciler",
			})
			if err != nil {
				log.WithError(err).Error("Failed to settle paid order")
				continue
			}
			log.Info("Settled order from processor state")
			report.Settled++
		case auth.Status == payment.StatusCanceled:
			_, err := r.svc.UpdateStatus(ctx, o.ID, StatusUpdateRequest{
				Status: OrderStatusFailed,
				Reason: "authorization canceled at processor",
				By:     "reconciler",
			})
			if err != nil {
				log.WithError(err).Error("Failed to fail order")
				continue
			}
			report.Failed++
		case abandoned:
			r.abandon(ctx, o, log, report)
		default:
			r.syncPaymentStatus(ctx, o, auth, log)
		}
	}
}

func (r *Reconciler) abandon(ctx context.Context, o *Order, log *logrus.Entry, report *Report) {
	_, err := r.svc.UpdateStatus(ctx, o.ID, StatusUpdateRequest{
		Status: OrderStatusCancelled,
		Reason: "abandoned",
		By:     "reconciler",
	})
	if err != nil {
		log.WithError(err).Warn("Failed to cancel abandoned order")
		return
	}
	log.Info("Cancelled abandoned order")
	report.Abandoned++
}

// syncPaymentStatus mirrors an in-progress processor state onto the order
func (r *Reconciler) syncPaymentStatus(ctx context.Context, o *Order, auth *payment.Authorization, log *logrus.Entry) {
	status := PaymentStatusPending
	switch {
	case auth.Status == payment.StatusRequiresAction:
		status = PaymentStatusRequiresAction
	case auth.LastError != "":
		status = PaymentStatusFailed
	}
	if status == o.PaymentStatus {
		return
	}
	if err := r.svc.repo.SetPaymentStatus(ctx, o.ID, status); err != nil {
		log.WithError(err).Warn("Failed to sync payment status")
	}
}

func (r *Reconciler) notifyPaid(ctx context.Context, report *Report) {
	orders, err := r.svc.repo.FindUnnotifiedPaid(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.WithError(err).Error("Failed to fetch unnotified orders")
		return
	}
	for _, o := range orders {
		if r.svc.NotifyPaid(ctx, o.ID) {
			report.Notified++
		}
	}
}

func (r *Reconciler) publishOutbox(ctx context.Context, report *Report) {
	events, err := r.svc.repo.UnpublishedEvents(ctx, r.cfg.BatchSize)
	if err != nil {
		r.logger.WithError(err).Error("Failed to fetch outbox events")
		return
	}

	for _, event := range events {
		if err := r.publisher.Publish(ctx, event); err != nil {
			r.logger.WithError(err).WithField("event_id", event.ID).Warn("Failed to publish order event")
			continue
		}
		if err := r.svc.repo.MarkEventPublished(ctx, event.ID, r.svc.now()); err != nil {
			r.logger.WithError(err).WithField("event_id", event.ID).Warn("Failed to mark order event published")
		}
		report.Published++
	}
}
