package service

import (
	"storefront-client/internal/models"

	"github.com/shopspring/decimal"
)

// Totals are the order amounts shown at checkout and sent with the order.
type Totals struct {
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Total     float64 `json:"total"`
	ItemCount int     `json:"itemCount"`
}

// cartSubtotal sums unit price times quantity, preferring discount prices.
func cartSubtotal(items []models.CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		unit := decimal.NewFromFloat(item.Product.UnitPrice())
		sum = sum.Add(unit.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return sum
}

// localCartTotal is the guest-cart total, rounded to cents.
func localCartTotal(items []models.CartItem) float64 {
	return cartSubtotal(items).Round(2).InexactFloat64()
}

// ComputeTotals derives subtotal, tax and total for a cart.
func ComputeTotals(cart models.Cart, taxRate float64) Totals {
	subtotal := cartSubtotal(cart.Items).Round(2)
	tax := subtotal.Mul(decimal.NewFromFloat(taxRate)).Round(2)
	return Totals{
		Subtotal:  subtotal.InexactFloat64(),
		Tax:       tax.InexactFloat64(),
		Total:     subtotal.Add(tax).Round(2).InexactFloat64(),
		ItemCount: cart.ItemCount(),
	}
}

// FormatAmount renders an amount with exactly two decimals.
func FormatAmount(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}
