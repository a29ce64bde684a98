package checkout

import (
	"github.com/digitalt3/lms-client/core/cart"
	"github.com/shopspring/decimal"
)

// TaxRate is applied to the discounted subtotal.
var TaxRate = decimal.RequireFromString("0.07")

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Taxable  decimal.Decimal `json:"taxable"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// Compute derives the totals of items with an optional coupon. Amounts are
// kept at full precision; rounding to cents happens when they are stored.
func Compute(items []cart.Item, coupon *Coupon) Totals {
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.Price)
	}

	discount := coupon.Discount(subtotal)
	taxable := decimal.Max(subtotal.Sub(discount), decimal.Zero)
	tax := taxable.Mul(TaxRate)

	return Totals{
		Subtotal: subtotal,
		Discount: discount,
		Taxable:  taxable,
		Tax:      tax,
		Total:    decimal.Max(taxable.Add(tax), decimal.Zero),
	}
}

// Rounded returns t with every amount rounded to cents.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal: t.Subtotal.Round(2),
		Discount: t.Discount.Round(2),
		Taxable:  t.Taxable.Round(2),
		Tax:      t.Tax.Round(2),
		Total:    t.Total.Round(2),
	}
}
