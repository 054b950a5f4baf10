// internal/pkg/email/types.go
package email

import (
	"time"
)

// EmailType represents the type of email being sent
type EmailType string

const (
	EmailTypeOrderConfirmation EmailType = "order_confirmation"
	EmailTypeTest              EmailType = "test"
)

// Email represents an email message
type Email struct {
	To          []string               `json:"to"`
	Subject     string                 `json:"subject"`
	HTMLContent string                 `json:"html_content"`
	Type        EmailType              `json:"type"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// EmailTemplateData contains common data for all email templates
type EmailTemplateData struct {
	SiteName   string `json:"site_name"`
	SiteURL    string `json:"site_url"`
	SupportURL string `json:"support_url"`
	UserName   string `json:"user_name"`
	UserEmail  string `json:"user_email"`
	Year       int    `json:"year"`
}

// OrderConfirmationData contains data for order confirmation email.
// Money fields are preformatted with two decimals.
type OrderConfirmationData struct {
	EmailTemplateData
	OrderNumber    string      `json:"order_number"`
	OrderDate      string      `json:"order_date"`
	Currency       string      `json:"currency"`
	Subtotal       string      `json:"subtotal"`
	Tax            string      `json:"tax"`
	Shipping       string      `json:"shipping"`
	OrderTotal     string      `json:"order_total"`
	OrderURL       string      `json:"order_url"`
	Items          []OrderItem `json:"items"`
	BillingAddress Address     `json:"billing_address"`
}

// OrderItem represents an item in the order
type OrderItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
	Total    string `json:"total"`
	ImageURL string `json:"image_url"`
}

// Address represents the billing address
type Address struct {
	FullName     string `json:"full_name"`
	AddressLine1 string `json:"address_line1"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

// GetBaseTemplateData returns common template data
func GetBaseTemplateData(siteName, siteURL, userName, userEmail string, now time.Time) EmailTemplateData {
	return EmailTemplateData{
		SiteName:   siteName,
		SiteURL:    siteURL,
		SupportURL: siteURL + "/support",
		UserName:   userName,
		UserEmail:  userEmail,
		Year:       now.Year(),
	}
}
