package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
	"github.com/your-org/seasonal-storefront/internal/pkg/email"
	"github.com/your-org/seasonal-storefront/internal/pkg/logger"
	"github.com/your-org/seasonal-storefront/internal/pkg/sms"
)

type MockEmailSender struct {
	Sent []email.OrderConfirmationData
	Err  error
}

func (m *MockEmailSender) SendOrderConfirmationEmail(_ context.Context, data email.OrderConfirmationData) error {
	m.Sent = append(m.Sent, data)
	return m.Err
}

type MockSMSSender struct {
	To   []string
	Body []string
	Err  error
}

func (m *MockSMSSender) Send(_ context.Context, to, body string) (*sms.Message, error) {
	m.To = append(m.To, to)
	m.Body = append(m.Body, body)
	if m.Err != nil {
		return nil, m.Err
	}
	return &sms.Message{SID: "SM1", Status: "queued", To: to}, nil
}

func paidOrder() *order.Order {
	paidAt := time.Date(2026, 12, 10, 9, 30, 0, 0, time.UTC)
	return &order.Order{
		ID:           "6f1c2b7e-0000-4000-8000-000000000001",
		OrderNumber:  "ORD-20261210-6F1C2B7E",
		CustomerName: "Ada Lovelace",
		Email:        "ada@example.com",
		Phone:        "+15035550100",
		Subtotal:     decimal.RequireFromString("158"),
		Tax:          decimal.RequireFromString("11.06"),
		Shipping:     decimal.Zero,
		Total:        decimal.RequireFromString("169.06"),
		Currency:     "USD",
		PaidAt:       &paidAt,
		Items: []order.OrderItem{{
			DisplayName: "Frosted Pine Wreath",
			ImageRef:    "images/wreath.jpg",
			Quantity:    2,
			UnitPrice:   decimal.RequireFromString("42"),
			LineTotal:   decimal.RequireFromString("84"),
		}},
		BillingAddress: order.Address{FullName: "Ada Lovelace", City: "Portland", Country: "US"},
	}
}

func TestNotifyOrderConfirmed(t *testing.T) {
	mail := &MockEmailSender{}
	text := &MockSMSSender{}
	d := NewDispatcher(mail, text, "Evergreen & Tinsel", "https://shop.example.com/", logger.Discard())

	require.NoError(t, d.NotifyOrderConfirmed(context.Background(), paidOrder()))

	require.Len(t, mail.Sent, 1)
	sent := mail.Sent[0]
	assert.Equal(t, "ada@example.com", sent.UserEmail)
	assert.Equal(t, "Ada Lovelace", sent.UserName)
	assert.Equal(t, "December 10, 2026", sent.OrderDate)
	assert.Equal(t, "158.00", sent.Subtotal)
	assert.Equal(t, "169.06", sent.OrderTotal)
	assert.Equal(t, "https://shop.example.com/orders/6f1c2b7e-0000-4000-8000-000000000001", sent.OrderURL)
	require.Len(t, sent.Items, 1)
	assert.Equal(t, "42.00", sent.Items[0].Price)
	assert.Equal(t, "https://shop.example.com/images/wreath.jpg", sent.Items[0].ImageURL)

	require.Equal(t, []string{"+15035550100"}, text.To)
	assert.Contains(t, text.Body[0], "ORD-20261210-6F1C2B7E")
	assert.Contains(t, text.Body[0], "169.06 USD")
}

func TestNotifyOrderConfirmed_ChannelsAreIndependent(t *testing.T) {
	mail := &MockEmailSender{Err: errors.New("smtp down")}
	text := &MockSMSSender{}
	d := NewDispatcher(mail, text, "Shop", "https://shop.example.com", logger.Discard())

	err := d.NotifyOrderConfirmed(context.Background(), paidOrder())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.Len(t, text.To, 1, "sms is still attempted")
}

func TestNotifyOrderConfirmed_WithoutSMS(t *testing.T) {
	mail := &MockEmailSender{}
	d := NewDispatcher(mail, nil, "Shop", "https://shop.example.com", logger.Discard())

	o := paidOrder()
	o.PaidAt = nil
	o.CreatedAt = time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.NotifyOrderConfirmed(context.Background(), o))
	assert.Equal(t, "December 1, 2026", mail.Sent[0].OrderDate)

	text := &MockSMSSender{}
	d = NewDispatcher(mail, text, "Shop", "https://shop.example.com", logger.Discard())
	o.Phone = ""
	require.NoError(t, d.NotifyOrderConfirmed(context.Background(), o))
	assert.Empty(t, text.To)
}
