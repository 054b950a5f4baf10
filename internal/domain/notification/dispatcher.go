package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/pkg/email"
	"github.com/your-org/seasonal-storefront/internal/pkg/sms"
)

// EmailSender delivers the confirmation email
type EmailSender interface {
	SendOrderConfirmationEmail(ctx context.Context, data email.OrderConfirmationData) error
}

// SMSSender delivers a text message
type SMSSender interface {
	Send(ctx context.Context, to, body string) (*sms.Message, error)
}

// Dispatcher sends order confirmations over every configured channel. It
// implements order.Notifier.
type Dispatcher struct {
	email    EmailSender
	sms      SMSSender
	siteName string
	baseURL  string
	logger   *logrus.Logger
}

// NewDispatcher creates a dispatcher. smsSender may be nil.
func NewDispatcher(emailSender EmailSender, smsSender SMSSender, siteName, baseURL string, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		email:    emailSender,
		sms:      smsSender,
		siteName: siteName,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// NotifyOrderConfirmed emails the customer and, when a phone number is on the
// order, sends a text. Every channel is attempted; the errors are joined.
func (d *Dispatcher) NotifyOrderConfirmed(ctx context.Context, o *order.Order) error {
	log := d.logger.WithFields(logrus.Fields{
		"order_id":     o.ID,
		"order_number": o.OrderNumber,
	})

	var errs []error
	if err := d.email.SendOrderConfirmationEmail(ctx, d.confirmationData(o)); err != nil {
		log.WithError(err).Warn("Order confirmation email failed")
		errs = append(errs, fmt.Errorf("email: %w", err))
	}

	if d.sms != nil && o.Phone != "" {
		if _, err := d.sms.Send(ctx, o.Phone, d.smsBody(o)); err != nil {
			log.WithError(err).Warn("Order confirmation SMS failed")
			errs = append(errs, fmt.Errorf("sms: %w", err))
		}
	}

	if len(errs) == 0 {
		log.Info("Order confirmation sent")
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) confirmationData(o *order.Order) email.OrderConfirmationData {
	placed := o.CreatedAt
	if o.PaidAt != nil {
		placed = *o.PaidAt
	}

	items := make([]email.OrderItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, email.OrderItem{
			Name:     item.DisplayName,
			Quantity: item.Quantity,
			Price:    item.UnitPrice.StringFixed(2),
			Total:    item.LineTotal.StringFixed(2),
			ImageURL: d.imageURL(item.ImageRef),
		})
	}

	data := email.OrderConfirmationData{
		OrderNumber: o.OrderNumber,
		OrderDate:   placed.Format("January 2, 2006"),
		Currency:    o.Currency,
		Subtotal:    o.Subtotal.StringFixed(2),
		Tax:         o.Tax.StringFixed(2),
		Shipping:    o.Shipping.StringFixed(2),
		OrderTotal:  o.Total.StringFixed(2),
		OrderURL:    fmt.Sprintf("%s/orders/%s", d.baseURL, o.ID),
		Items:       items,
		BillingAddress: email.Address{
			FullName:     o.BillingAddress.FullName,
			AddressLine1: o.BillingAddress.AddressLine1,
			City:         o.BillingAddress.City,
			State:        o.BillingAddress.State,
			PostalCode:   o.BillingAddress.PostalCode,
			Country:      o.BillingAddress.Country,
		},
	}
	data.UserName = o.CustomerName
	data.UserEmail = o.Email
	return data
}

func (d *Dispatcher) imageURL(ref string) string {
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return d.baseURL + "/" + strings.TrimLeft(ref, "/")
}

func (d *Dispatcher) smsBody(o *order.Order) string {
	return fmt.Sprintf("%s: order %s is confirmed. Total %s %s. Thank you!",
		d.siteName, o.OrderNumber, o.Total.StringFixed(2), o.Currency)
}
