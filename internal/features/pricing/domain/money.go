package domain

import "github.com/shopspring/decimal"

// Round2 rounds a monetary amount to 2 decimal places, half-up. Intermediate
// arithmetic keeps full precision; rounding happens only where a value is
// displayed or persisted.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MustMoney parses a decimal amount from its string form, panicking on
// malformed input. Intended for literals in config defaults and tests.
func MustMoney(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Totals is the monetary breakdown of an order.
type Totals struct {
	// Subtotal is the sum of unit price times quantity over all lines.
	Subtotal decimal.Decimal `json:"subtotal"`
	// Tax is the tax applied on top of the subtotal.
	Tax decimal.Decimal `json:"tax"`
	// Discount is the total reduction, order-level plus per-line.
	Discount decimal.Decimal `json:"discount"`
	// Shipping is the shipping cost charged, zero when shipping is free.
	Shipping decimal.Decimal `json:"shipping"`
	// Total is subtotal + tax - discount + shipping, never negative.
	Total decimal.Decimal `json:"total"`
}

// Rounded returns a copy with every amount rounded to 2 decimal places.
func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal: Round2(t.Subtotal),
		Tax:      Round2(t.Tax),
		Discount: Round2(t.Discount),
		Shipping: Round2(t.Shipping),
		Total:    Round2(t.Total),
	}
}

// QuoteLine is one priced line fed into the engine.
type QuoteLine struct {
	// UnitPrice is the per-unit price of the line.
	UnitPrice decimal.Decimal `json:"unit_price"`
	// UnitDiscount is the per-unit reduction applied to the line.
	UnitDiscount decimal.Decimal `json:"unit_discount"`
	// Quantity is the number of units.
	Quantity int `json:"quantity"`
}

// Quote is the pricing input for one order: its lines plus the monetary and
// shipping context the tax, discount, and shipping rules depend on.
type Quote struct {
	// Lines are the order's current lines. When present they are
	// authoritative for the subtotal.
	Lines []QuoteLine
	// Tax is the order's stated tax amount, used when no regional rule applies.
	Tax decimal.Decimal
	// Discount is the order-level discount amount.
	Discount decimal.Decimal
	// ShippingCost is the shipping charge before eligibility checks.
	ShippingCost decimal.Decimal
	// Region is the destination region driving regional tax rules.
	Region string
	// TaxExempt is the shipping context's exemption declaration, which routes
	// tax through the regional rule table.
	TaxExempt bool
	// PaidByCard is true when the order's payment method is a credit card.
	PaidByCard bool
}

// LineCount returns the number of lines in the quote.
func (q Quote) LineCount() int {
	return len(q.Lines)
}

// RawSubtotal sums unit price times quantity over all lines at full precision.
func (q Quote) RawSubtotal() decimal.Decimal {
	subtotal := decimal.Zero
	for _, line := range q.Lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return subtotal
}

// LineDiscounts sums per-unit discounts times quantity over all lines.
func (q Quote) LineDiscounts() decimal.Decimal {
	total := decimal.Zero
	for _, line := range q.Lines {
		if line.UnitDiscount.IsZero() {
			continue
		}
		total = total.Add(line.UnitDiscount.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	return total
}
