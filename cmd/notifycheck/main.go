// cmd/notifycheck/main.go checks the notification channels by sending a test
// email, and a test text message when SMS is enabled.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/pkg/email"
	"github.com/your-org/seasonal-storefront/internal/pkg/logger"
	"github.com/your-org/seasonal-storefront/internal/pkg/sms"
)

func main() {
	to := flag.String("to", "", "recipient email address")
	phone := flag.String("phone", "", "recipient phone number in E.164 format")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	log := logger.New(cfg)

	if *to == "" {
		log.Fatal("Usage: notifycheck -to someone@example.com [-phone +15035550100]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	emailService := email.NewService(cfg.Notification.Email, log)
	if cfg.Notification.Email.Provider == "smtp" {
		if err := emailService.TestSMTPConnection(); err != nil {
			log.Fatalf("SMTP failed: %v", err)
		}
	}

	testEmail := &email.Email{
		To:          []string{*to},
		Subject:     "Test email from " + cfg.App.Name,
		HTMLContent: "<h1>Success!</h1><p>Order confirmations will be delivered.</p>",
		Type:        email.EmailTypeTest,
	}
	if err := emailService.SendEmail(ctx, testEmail); err != nil {
		log.Fatalf("Send failed: %v", err)
	}
	log.Info("✅ Email sent successfully!")

	if *phone == "" {
		return
	}
	client := sms.NewClient(cfg.Notification.SMS)
	if client == nil {
		log.Warn("SMS is disabled, skipping text message")
		return
	}
	msg, err := client.Send(ctx, *phone, "Test message from "+cfg.App.Name)
	if err != nil {
		log.Fatalf("SMS failed: %v", err)
	}
	log.WithField("sid", msg.SID).Info("✅ SMS sent successfully!")
}
