// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/shopspring/decimal"
	"github.com/your-org/seasonal-storefront/internal/config"
	"github.com/your-org/seasonal-storefront/internal/domain/order"
)

// ErrNotPaid is returned for orders that have no receipt yet
var ErrNotPaid = errors.New("receipts are only available for paid orders")

// Service handles PDF generation
type Service struct {
	company CompanyInfo
	tmpl    *template.Template
	now     func() time.Time
}

// NewService creates a new PDF service
func NewService(cfg config.AppConfig) *Service {
	return &Service{
		company: CompanyInfo{
			Name:    cfg.CompanyName,
			Address: cfg.CompanyAddress,
			Phone:   cfg.CompanyPhone,
			Email:   cfg.CompanyEmail,
			Website: cfg.BaseURL,
		},
		tmpl: template.Must(template.New("receipt").Funcs(template.FuncMap{
			"money": func(d decimal.Decimal) string { return d.StringFixed(2) },
			"date":  func(t time.Time) string { return t.Format("January 2, 2006") },
		}).Parse(receiptTemplate)),
		now: time.Now,
	}
}

// ReceiptData represents the data passed to the receipt template
type ReceiptData struct {
	ReceiptNumber string       `json:"receipt_number"`
	IssuedOn      string       `json:"issued_on"`
	PaidOn        string       `json:"paid_on"`
	Order         *order.Order `json:"order"`
	Company       CompanyInfo  `json:"company"`
}

// CompanyInfo represents company information
type CompanyInfo struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

// RenderReceiptHTML renders the receipt page for a paid order
func (s *Service) RenderReceiptHTML(o *order.Order) (string, error) {
	if o.Status != order.OrderStatusPaid {
		return "", ErrNotPaid
	}

	paidOn := o.UpdatedAt
	if o.PaidAt != nil {
		paidOn = *o.PaidAt
	}
	data := ReceiptData{
		ReceiptNumber: "RCT-" + o.OrderNumber,
		IssuedOn:      s.now().Format("January 2, 2006"),
		PaidOn:        paidOn.Format("January 2, 2006"),
		Order:         o,
		Company:       s.company,
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// GenerateReceipt converts the receipt page to PDF with wkhtmltopdf
func (s *Service) GenerateReceipt(o *order.Order) (*bytes.Buffer, error) {
	htmlContent, err := s.RenderReceiptHTML(o)
	if err != nil {
		return nil, err
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}
	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeLetter)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader([]byte(htmlContent)))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}
	return bytes.NewBuffer(pdfg.Bytes()), nil
}

const receiptTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Receipt {{.ReceiptNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { display: flex; justify-content: space-between; border-bottom: 2px solid #eee; padding-bottom: 20px; margin-bottom: 30px; }
        .title { font-size: 28px; font-weight: bold; color: #1f5132; }
        .items { width: 100%; border-collapse: collapse; margin-bottom: 30px; }
        .items th, .items td { border: 1px solid #ddd; padding: 10px 8px; text-align: left; }
        .items th { background-color: #f8f9fa; }
        .num { text-align: right; width: 90px; }
        .totals { float: right; width: 300px; }
        .totals td { padding: 8px; border-bottom: 1px solid #eee; }
        .total-row { font-size: 18px; font-weight: bold; }
        .footer { clear: both; margin-top: 50px; padding-top: 20px; border-top: 1px solid #eee; text-align: center; color: #666; font-size: 12px; }
    </style>
</head>
<body>
    <div class="header">
        <div>
            <h1>{{.Company.Name}}</h1>
            <p>{{.Company.Address}}</p>
            <p>{{.Company.Email}} &middot; {{.Company.Phone}}</p>
        </div>
        <div style="text-align: right;">
            <div class="title">RECEIPT</div>
            <p><strong>Receipt #:</strong> {{.ReceiptNumber}}</p>
            <p><strong>Order #:</strong> {{.Order.OrderNumber}}</p>
            <p><strong>Ordered:</strong> {{date .Order.CreatedAt}}</p>
            <p><strong>Paid:</strong> {{.PaidOn}}</p>
        </div>
    </div>

    <div>
        <strong>Billed to</strong>
        <p>{{.Order.BillingAddress.FullName}}<br>
           {{.Order.BillingAddress.AddressLine1}}<br>
           {{.Order.BillingAddress.City}}, {{.Order.BillingAddress.State}} {{.Order.BillingAddress.PostalCode}}<br>
           {{.Order.BillingAddress.Country}}</p>
        <p>{{.Order.Email}}</p>
    </div>

    <table class="items">
        <thead>
            <tr><th>Item</th><th class="num">Qty</th><th class="num">Price</th><th class="num">Total</th></tr>
        </thead>
        <tbody>
            {{range .Order.Items}}
            <tr>
                <td>{{.DisplayName}}</td>
                <td class="num">{{.Quantity}}</td>
                <td class="num">{{money .UnitPrice}}</td>
                <td class="num">{{money .LineTotal}}</td>
            </tr>
            {{end}}
        </tbody>
    </table>

    <div class="totals">
        <table style="width: 100%;">
            <tr><td>Subtotal</td><td class="num">{{money .Order.Subtotal}}</td></tr>
            <tr><td>Shipping</td><td class="num">{{money .Order.Shipping}}</td></tr>
            <tr><td>Tax</td><td class="num">{{money .Order.Tax}}</td></tr>
            <tr class="total-row"><td>Total paid</td><td class="num">{{money .Order.Total}} {{.Order.Currency}}</td></tr>
        </table>
    </div>

    <div class="footer">
        <p>Thank you for decorating with us! Receipt issued {{.IssuedOn}}.</p>
        <p>Questions about this receipt? Contact {{.Company.Email}}</p>
    </div>
</body>
</html>
`
