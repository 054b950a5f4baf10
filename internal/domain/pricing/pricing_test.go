package pricing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/seasonal-storefront/internal/domain/cart"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPrice(t *testing.T) {
	rules, err := NewRuleSet("0.07", []int64{40})
	require.NoError(t, err)

	tests := []struct {
		name         string
		lines        cart.Lines
		wantSubtotal string
		wantTax      string
		wantTotal    string
	}{
		{
			name:         "empty cart",
			lines:        nil,
			wantSubtotal: "0",
			wantTax:      "0",
			wantTotal:    "0",
		},
		{
			name: "single taxable line",
			lines: cart.Lines{
				{ProductID: 1, DisplayName: "Nordmann Fir (6 ft)", UnitPrice: d("74.00"), Quantity: 2},
			},
			wantSubtotal: "148",
			wantTax:      "10.36",
			wantTotal:    "158.36",
		},
		{
			name: "exempt gift card is not taxed",
			lines: cart.Lines{
				{ProductID: 11, DisplayName: "Frosted Pine Wreath", UnitPrice: d("42.00"), Quantity: 1},
				{ProductID: 40, DisplayName: "Gift Card ($50)", UnitPrice: d("50.00"), Quantity: 1},
			},
			wantSubtotal: "92",
			wantTax:      "2.94",
			wantTotal:    "94.94",
		},
		{
			name: "tax rounds half away from zero",
			lines: cart.Lines{
				{ProductID: 21, DisplayName: "Warm White String Lights", UnitPrice: d("15.50"), Quantity: 1},
			},
			wantSubtotal: "15.5",
			wantTax:      "1.09",
			wantTotal:    "16.59",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Price(tt.lines, rules)
			assert.Equal(t, tt.wantSubtotal, b.Subtotal.String())
			assert.Equal(t, tt.wantTax, b.Tax.String())
			assert.Equal(t, tt.wantTotal, b.Total.String())
			assert.True(t, b.Shipping.IsZero())
		})
	}
}

func TestPrice_DeterministicAndConsistent(t *testing.T) {
	rules, err := NewRuleSet("0.0825", []int64{40})
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		var lines cart.Lines
		for j := 0; j < 1+rng.Intn(6); j++ {
			lines = append(lines, cart.Line{
				ProductID:   int64(1 + rng.Intn(45)),
				DisplayName: "item",
				UnitPrice:   decimal.New(int64(rng.Intn(20000)), -2),
				Quantity:    1 + rng.Intn(5),
			})
		}

		first := Price(lines, rules)
		second := Price(lines.Clone(), rules)

		assert.True(t, first.Total.Equal(second.Total))
		assert.True(t, first.Total.Equal(first.Subtotal.Add(first.Shipping).Add(first.Tax)))
		assert.LessOrEqual(t, first.Tax.Exponent(), int32(0))
		assert.GreaterOrEqual(t, first.Tax.Exponent(), int32(-2))
	}
}

func TestNewRuleSet_Rejects(t *testing.T) {
	_, err := NewRuleSet("abc")
	assert.Error(t, err)
	_, err = NewRuleSet("-0.01")
	assert.Error(t, err)
	_, err = NewRuleSet("1")
	assert.Error(t, err)
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(15836), MinorUnits(d("158.36")))
	assert.Equal(t, int64(100), MinorUnits(d("1")))
	assert.Equal(t, "158.36", FromMinorUnits(15836).String())
}
