package checkout

import (
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
	"github.com/your-org/seasonal-storefront/internal/domain/pricing"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
)

// Summary is what the checkout page renders before the form is submitted
type Summary struct {
	Lines          cart.Lines        `json:"lines"`
	ItemCount      int               `json:"item_count"`
	Pricing        pricing.Breakdown `json:"pricing"`
	TotalMinor     int64             `json:"total_minor"`
	Currency       string            `json:"currency"`
	PaymentMethods []PaymentMethod   `json:"payment_methods"`
	AttemptID      string            `json:"attempt_id"`
}

// PaymentMethod represents available payment methods
type PaymentMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
}

// Summary prices the cart the same way the order service will
func (o *Orchestrator) Summary(identity auth.Identity, lines cart.Lines) (*Summary, error) {
	if !identity.IsAuthenticated {
		return nil, ErrNotAuthenticated
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	breakdown := pricing.Price(lines, o.rules)
	return &Summary{
		Lines:          lines,
		ItemCount:      lines.ItemCount(),
		Pricing:        breakdown,
		TotalMinor:     pricing.MinorUnits(breakdown.Total),
		Currency:       o.cfg.Currency,
		PaymentMethods: availablePaymentMethods(),
		AttemptID:      AttemptID(identity.UserID, lines),
	}, nil
}

func availablePaymentMethods() []PaymentMethod {
	return []PaymentMethod{
		{
			ID:          "card",
			Name:        "Credit / Debit Card",
			Description: "Visa, Mastercard, American Express",
			Available:   true,
		},
	}
}
