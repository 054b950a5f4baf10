// internal/pkg/email/service.go
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
)

// Service sends transactional email through the configured provider
type Service struct {
	config    config.EmailConfig
	templates map[string]*template.Template
	client    *http.Client
	logger    *logrus.Logger
	endpoints map[string]string
	now       func() time.Time
}

// Provider API endpoints
var defaultEndpoints = map[string]string{
	"resend":     "https://api.resend.com/emails",
	"sendgrid":   "https://api.sendgrid.com/v3/mail/send",
	"mailersend": "https://api.mailersend.com/v1/email",
}

// NewService creates a new email service
func NewService(cfg config.EmailConfig, logger *logrus.Logger) *Service {
	service := &Service{
		config:    cfg,
		templates: make(map[string]*template.Template),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:    logger,
		endpoints: make(map[string]string, len(defaultEndpoints)),
		now:       time.Now,
	}
	for name, url := range defaultEndpoints {
		service.endpoints[name] = url
	}

	service.loadTemplates()
	return service
}

// SendEmail sends an email using the configured provider
func (s *Service) SendEmail(ctx context.Context, email *Email) error {
	if len(email.To) == 0 {
		return fmt.Errorf("email %q has no recipients", email.Subject)
	}

	switch s.config.Provider {
	case "smtp":
		return s.sendSMTPEmail(email)
	case "resend":
		return s.sendResendEmail(ctx, email)
	case "sendgrid":
		return s.sendSendGridEmail(ctx, email)
	case "mailersend":
		return s.sendMailerSendEmail(ctx, email)
	case "log":
		s.logger.WithFields(logrus.Fields{
			"to":      email.To,
			"subject": email.Subject,
			"type":    email.Type,
		}).Info("Email delivery disabled, logging instead")
		return nil
	default:
		return fmt.Errorf("unsupported email provider: %s", s.config.Provider)
	}
}

// SendOrderConfirmationEmail sends order confirmation email
func (s *Service) SendOrderConfirmationEmail(ctx context.Context, data OrderConfirmationData) error {
	data.EmailTemplateData = GetBaseTemplateData(
		s.config.FromName,
		s.config.BaseURL,
		data.UserName,
		data.UserEmail,
		s.now(),
	)
	if data.OrderURL == "" {
		data.OrderURL = fmt.Sprintf("%s/orders/%s", s.config.BaseURL, data.OrderNumber)
	}

	htmlContent, err := s.renderTemplate("order_confirmation", data)
	if err != nil {
		return fmt.Errorf("failed to render order confirmation template: %w", err)
	}

	email := &Email{
		To:          []string{data.UserEmail},
		Subject:     fmt.Sprintf("Order Confirmation - %s", data.OrderNumber),
		HTMLContent: htmlContent,
		Type:        EmailTypeOrderConfirmation,
		Data: map[string]interface{}{
			"order_number": data.OrderNumber,
			"order_total":  data.OrderTotal,
		},
	}

	return s.SendEmail(ctx, email)
}

// fromAddress formats the sender as "Name <address>"
func (s *Service) fromAddress() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.FromEmail)
	}
	return s.config.FromEmail
}

// loadTemplates loads the email templates, falling back to the built-in ones
func (s *Service) loadTemplates() {
	templateDir := s.config.TemplateDir
	if templateDir == "" {
		templateDir = "./templates/emails"
	}

	for name, fallback := range fallbackTemplates {
		templatePath := filepath.Join(templateDir, name+".html")
		tmpl, err := template.ParseFiles(templatePath)
		if err != nil {
			s.logger.WithError(err).WithField("template", name).Debug("Using built-in email template")
			tmpl = template.Must(template.New(name).Parse(fallback))
		}
		s.templates[name] = tmpl
	}
}

// renderTemplate renders an email template with data
func (s *Service) renderTemplate(templateName string, data interface{}) (string, error) {
	tmpl, exists := s.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

var fallbackTemplates = map[string]string{
	"order_confirmation": `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.SiteName}}: order {{.OrderNumber}}</title>
</head>
<body style="font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f4f4f4;">
    <div style="max-width: 600px; margin: 0 auto; background-color: white; padding: 20px; border-radius: 8px;">
        <h1 style="color: #1f5132;">Thank you for your order!</h1>
        <p>Hello {{.UserName}},</p>
        <p>We received your payment for order <strong>{{.OrderNumber}}</strong> placed on {{.OrderDate}}.</p>
        <table style="width: 100%; border-collapse: collapse;">
            {{range .Items}}
            <tr>
                <td style="padding: 6px 0;">{{.Name}} &times; {{.Quantity}}</td>
                <td style="padding: 6px 0; text-align: right;">{{.Total}}</td>
            </tr>
            {{end}}
            <tr><td>Subtotal</td><td style="text-align: right;">{{.Subtotal}}</td></tr>
            <tr><td>Shipping</td><td style="text-align: right;">{{.Shipping}}</td></tr>
            <tr><td>Tax</td><td style="text-align: right;">{{.Tax}}</td></tr>
            <tr><td><strong>Total</strong></td><td style="text-align: right;"><strong>{{.OrderTotal}} {{.Currency}}</strong></td></tr>
        </table>
        <p>Billed to {{.BillingAddress.FullName}}, {{.BillingAddress.AddressLine1}}, {{.BillingAddress.City}} {{.BillingAddress.PostalCode}}</p>
        <p><a href="{{.OrderURL}}">View your order</a></p>
        <hr>
        <p style="font-size: 12px; color: #666;">
            &copy; {{.Year}} {{.SiteName}}. Questions? Visit {{.SupportURL}}
        </p>
    </div>
</body>
</html>`,
}
