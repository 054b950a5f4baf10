// internal/domain/cart/entity.go
package cart

import (
	"github.com/shopspring/decimal"
)

// Line is one entry of a cart. Lines are unique on (ProductID, DisplayName),
// so two size variants of the same tree are two lines.
type Line struct {
	ProductID   int64           `json:"product_id"`
	DisplayName string          `json:"display_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	ImageRef    string          `json:"image_ref"`
	Quantity    int             `json:"quantity"`
}

// LineKey identifies a line within a cart
type LineKey struct {
	ProductID   int64
	DisplayName string
}

// Key returns the uniqueness key of the line
func (l Line) Key() LineKey {
	return LineKey{ProductID: l.ProductID, DisplayName: l.DisplayName}
}

// Total returns unit price times quantity
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// matches reports whether the line is selected by a product id and an optional
// display name. An empty display name selects every variant of the product.
func (l Line) matches(productID int64, displayName string) bool {
	if l.ProductID != productID {
		return false
	}
	return displayName == "" || l.DisplayName == displayName
}

// Lines is an ordered cart
type Lines []Line

// ItemCount is the sum of quantities
func (ls Lines) ItemCount() int {
	count := 0
	for _, l := range ls {
		count += l.Quantity
	}
	return count
}

// Subtotal is the sum of line totals
func (ls Lines) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range ls {
		total = total.Add(l.Total())
	}
	return total
}

// Clone returns a copy that shares nothing with ls
func (ls Lines) Clone() Lines {
	if ls == nil {
		return nil
	}
	out := make(Lines, len(ls))
	copy(out, ls)
	return out
}

// sanitize drops lines that could not have been produced by a mutation
func (ls Lines) sanitize() Lines {
	out := make(Lines, 0, len(ls))
	seen := make(map[LineKey]int, len(ls))
	for _, l := range ls {
		if l.ProductID <= 0 || l.Quantity <= 0 || l.UnitPrice.IsNegative() {
			continue
		}
		if i, ok := seen[l.Key()]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		seen[l.Key()] = len(out)
		out = append(out, l)
	}
	return out
}
