// internal/domain/catalog/catalog.go
package catalog

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrVariantNotFound = errors.New("product variant not found")
)

// Variant is a purchasable option of a product. Its display name is what the
// cart keys lines on, e.g. "Nordmann Fir (7 ft)".
type Variant struct {
	Label string          `json:"label"`
	Price decimal.Decimal `json:"price"`
}

// Product is a catalog entry
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Category  string          `json:"category"`
	ImageRef  string          `json:"image_ref"`
	Price     decimal.Decimal `json:"price"`
	Variants  []Variant       `json:"variants,omitempty"`
	TaxExempt bool            `json:"tax_exempt"`
}

// DisplayName returns the line display name for a variant label. An empty
// label names the base product.
func (p Product) DisplayName(label string) string {
	if label == "" {
		return p.Name
	}
	return fmt.Sprintf("%s (%s)", p.Name, label)
}

// Quote is the authoritative price of one purchasable item
type Quote struct {
	ProductID   int64
	DisplayName string
	UnitPrice   decimal.Decimal
	ImageRef    string
	TaxExempt   bool
}

// Catalog is a read-only product lookup table
type Catalog struct {
	products map[int64]Product
}

// New builds a catalog from a product list
func New(products []Product) *Catalog {
	c := &Catalog{products: make(map[int64]Product, len(products))}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

// Default returns the storefront's seasonal product table
func Default() *Catalog {
	return New(seasonalProducts)
}

// Product returns a product by id
func (c *Catalog) Product(id int64) (Product, error) {
	p, ok := c.products[id]
	if !ok {
		return Product{}, fmt.Errorf("%w: %d", ErrProductNotFound, id)
	}
	return p, nil
}

// Products returns all products ordered by id
func (c *Catalog) Products() []Product {
	out := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Lookup resolves a (product id, display name) pair to its authoritative price.
// An empty display name resolves to the base product.
func (c *Catalog) Lookup(productID int64, displayName string) (Quote, error) {
	p, err := c.Product(productID)
	if err != nil {
		return Quote{}, err
	}

	quote := Quote{
		ProductID: p.ID,
		ImageRef:  p.ImageRef,
		TaxExempt: p.TaxExempt,
	}

	if displayName == "" || displayName == p.Name {
		if len(p.Variants) > 0 && p.Price.IsZero() {
			return Quote{}, fmt.Errorf("%w: product %d requires a variant", ErrVariantNotFound, productID)
		}
		quote.DisplayName = p.Name
		quote.UnitPrice = p.Price
		return quote, nil
	}

	for _, v := range p.Variants {
		if p.DisplayName(v.Label) == displayName {
			quote.DisplayName = displayName
			quote.UnitPrice = v.Price
			return quote, nil
		}
	}
	return Quote{}, fmt.Errorf("%w: %q for product %d", ErrVariantNotFound, displayName, productID)
}

// TaxExemptIDs lists products flagged tax exempt
func (c *Catalog) TaxExemptIDs() []int64 {
	var ids []int64
	for _, p := range c.Products() {
		if p.TaxExempt {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

func usd(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var seasonalProducts = []Product{
	{
		ID:       1,
		Name:     "Nordmann Fir",
		Category: "trees",
		ImageRef: "img/trees/nordmann-fir.jpg",
		Variants: []Variant{
			{Label: "5 ft", Price: usd("59.00")},
			{Label: "6 ft", Price: usd("74.00")},
			{Label: "7 ft", Price: usd("89.00")},
		},
	},
	{
		ID:       2,
		Name:     "Fraser Fir",
		Category: "trees",
		ImageRef: "img/trees/fraser-fir.jpg",
		Variants: []Variant{
			{Label: "6 ft", Price: usd("79.00")},
			{Label: "8 ft", Price: usd("119.00")},
		},
	},
	{
		ID:       3,
		Name:     "Tabletop Spruce",
		Category: "trees",
		ImageRef: "img/trees/tabletop-spruce.jpg",
		Price:    usd("24.99"),
	},
	{
		ID:       10,
		Name:     "Cedar Garland",
		Category: "garlands",
		ImageRef: "img/garlands/cedar.jpg",
		Variants: []Variant{
			{Label: "9 ft", Price: usd("34.50")},
			{Label: "25 ft", Price: usd("79.95")},
		},
	},
	{
		ID:       11,
		Name:     "Frosted Pine Wreath",
		Category: "wreaths",
		ImageRef: "img/wreaths/frosted-pine.jpg",
		Price:    usd("42.00"),
	},
	{
		ID:       20,
		Name:     "Glass Bauble Set",
		Category: "ornaments",
		ImageRef: "img/ornaments/bauble-set.jpg",
		Variants: []Variant{
			{Label: "Red", Price: usd("18.75")},
			{Label: "Gold", Price: usd("18.75")},
			{Label: "Midnight Blue", Price: usd("21.25")},
		},
	},
	{
		ID:       21,
		Name:     "Warm White String Lights",
		Category: "lighting",
		ImageRef: "img/lighting/warm-white.jpg",
		Price:    usd("15.49"),
	},
	{
		ID:       30,
		Name:     "Tree Stand",
		Category: "accessories",
		ImageRef: "img/accessories/tree-stand.jpg",
		Price:    usd("39.00"),
	},
	{
		ID:        40,
		Name:      "Gift Card",
		Category:  "gift-cards",
		ImageRef:  "img/gift-cards/gift-card.jpg",
		TaxExempt: true,
		Variants: []Variant{
			{Label: "$25", Price: usd("25.00")},
			{Label: "$50", Price: usd("50.00")},
		},
	},
}
