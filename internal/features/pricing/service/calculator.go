package service

import (
	"sync"

	"github.com/shopspring/decimal"

	"order-engine/internal/features/pricing/domain"
)

// EligibilityRule is a pluggable free-shipping predicate evaluated in addition
// to the built-in subtotal and card-promo rules (e.g. loyalty tiers).
type EligibilityRule func(q domain.Quote) bool

// Config holds the tax and shipping policy for the calculator.
type Config struct {
	// FlatTax is the tax amount added for tax-exempt orders shipping to a
	// region with no multiplier rule.
	FlatTax decimal.Decimal
	// RegionMultipliers maps region codes to tax multipliers applied to the
	// subtotal for tax-exempt orders.
	RegionMultipliers map[string]decimal.Decimal
	// NoSalesTaxRegions never accrue tax, regardless of exemption flags.
	NoSalesTaxRegions map[string]struct{}
	// FreeShippingSubtotal is the subtotal at or above which shipping is free.
	FreeShippingSubtotal decimal.Decimal
	// FreeShippingMinLines is the line count at or above which card-paid
	// orders ship free.
	FreeShippingMinLines int
	// ExtraEligibility holds additional free-shipping predicates.
	ExtraEligibility []EligibilityRule
}

// cacheEntry memoizes one order's totals for a specific mutation generation.
type cacheEntry struct {
	generation uint64
	totals     domain.Totals
}

// Calculator computes order totals. Results are memoized per order against a
// generation counter the order bumps on every pricing-relevant mutation, so a
// stale generation is the dirty flag.
type Calculator struct {
	cfg Config

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCalculator creates a Calculator with the given policy.
func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		cfg:   cfg,
		cache: make(map[string]cacheEntry),
	}
}

// Total returns the totals for an order's quote, recomputing only when the
// order's generation has moved past the cached one.
func (c *Calculator) Total(orderID string, generation uint64, q domain.Quote) domain.Totals {
	c.mu.Lock()
	if entry, ok := c.cache[orderID]; ok && entry.generation == generation {
		c.mu.Unlock()
		return entry.totals
	}
	c.mu.Unlock()

	totals := c.Compute(q)

	c.mu.Lock()
	c.cache[orderID] = cacheEntry{generation: generation, totals: totals}
	c.mu.Unlock()
	return totals
}

// Forget drops any cached totals for an order.
func (c *Calculator) Forget(orderID string) {
	c.mu.Lock()
	delete(c.cache, orderID)
	c.mu.Unlock()
}

// Compute prices a quote at full precision:
//  1. subtotal from the current lines (lines are authoritative),
//  2. tax via the regional rule table or the stated amount,
//  3. discount, clamped so the total never goes negative,
//  4. shipping, unless the order is free-shipping eligible.
func (c *Calculator) Compute(q domain.Quote) domain.Totals {
	subtotal := q.RawSubtotal()
	tax := c.taxFor(q, subtotal)
	discount := q.Discount.Add(q.LineDiscounts())

	total := subtotal.Add(tax).Sub(discount)
	if total.IsNegative() {
		// Excess discount caps at subtotal+tax rather than going below zero.
		total = decimal.Zero
	}

	shipping := decimal.Zero
	if !c.freeShippingEligible(q, subtotal) {
		shipping = q.ShippingCost
		total = total.Add(shipping)
	}

	return domain.Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Shipping: shipping,
		Total:    total,
	}
}

// taxFor resolves the tax amount for a quote. No-sales-tax regions always get
// zero; tax-exempt orders go through the regional multiplier table, falling
// back to the flat amount; everything else keeps the stated tax.
func (c *Calculator) taxFor(q domain.Quote, subtotal decimal.Decimal) decimal.Decimal {
	if _, ok := c.cfg.NoSalesTaxRegions[q.Region]; ok {
		return decimal.Zero
	}
	if q.TaxExempt {
		if multiplier, ok := c.cfg.RegionMultipliers[q.Region]; ok {
			return subtotal.Mul(multiplier)
		}
		return c.cfg.FlatTax
	}
	return q.Tax
}

// freeShippingEligible checks the built-in rules, then any plugged-in ones.
func (c *Calculator) freeShippingEligible(q domain.Quote, subtotal decimal.Decimal) bool {
	if !c.cfg.FreeShippingSubtotal.IsZero() && subtotal.GreaterThanOrEqual(c.cfg.FreeShippingSubtotal) {
		return true
	}
	if q.PaidByCard && c.cfg.FreeShippingMinLines > 0 && q.LineCount() >= c.cfg.FreeShippingMinLines {
		return true
	}
	for _, rule := range c.cfg.ExtraEligibility {
		if rule(q) {
			return true
		}
	}
	return false
}
