// Package pricing turns cart lines into a price breakdown. It is shared by
// the checkout orchestrator and the order service so both sides compute the
// same total from the same lines.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
)

// Breakdown is the priced summary of a cart
type Breakdown struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Shipping decimal.Decimal `json:"shipping"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// RuleSet carries the flat tax rate and the products exempt from it
type RuleSet struct {
	TaxRate decimal.Decimal
	Exempt  map[int64]bool
}

// NewRuleSet parses a tax rate such as "0.07" and collects exempt product ids
func NewRuleSet(taxRate string, exempt ...[]int64) (RuleSet, error) {
	rate, err := decimal.NewFromString(taxRate)
	if err != nil {
		return RuleSet{}, fmt.Errorf("invalid tax rate %q: %w", taxRate, err)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return RuleSet{}, fmt.Errorf("tax rate %s out of range", rate)
	}

	rules := RuleSet{TaxRate: rate, Exempt: make(map[int64]bool)}
	for _, ids := range exempt {
		for _, id := range ids {
			rules.Exempt[id] = true
		}
	}
	return rules, nil
}

// Price computes the breakdown of lines under rules. Shipping is free, tax is
// the flat rate applied to non-exempt lines and rounded to cents.
func Price(lines cart.Lines, rules RuleSet) Breakdown {
	subtotal := decimal.Zero
	taxable := decimal.Zero
	for _, l := range lines {
		lineTotal := l.Total()
		subtotal = subtotal.Add(lineTotal)
		if !rules.Exempt[l.ProductID] {
			taxable = taxable.Add(lineTotal)
		}
	}

	shipping := decimal.Zero
	tax := taxable.Mul(rules.TaxRate).Round(2)

	return Breakdown{
		Subtotal: subtotal.Round(2),
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal.Add(shipping).Add(tax).Round(2),
	}
}

// MinorUnits converts an amount to integer cents
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts integer cents to an amount
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
