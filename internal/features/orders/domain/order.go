package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"order-engine/internal/core/identity"
	pricing "order-engine/internal/features/pricing/domain"
)

var (
	// ErrOrderLocked is returned when a line mutation hits an order whose
	// state forbids modification.
	ErrOrderLocked = errors.New("order state forbids modification")
	// ErrConflictingLine is the base error for a line that matches an
	// existing product and options but cannot combine.
	ErrConflictingLine = errors.New("conflicting order line")
	// ErrEmptyOrder is returned when processing starts on an order with no lines.
	ErrEmptyOrder = errors.New("order has no lines")
	// ErrInvalidLine is returned when a line is missing its product id or has
	// a non-positive quantity.
	ErrInvalidLine = errors.New("invalid order line")
)

// PaymentMethod selects the shape validation applied to a payment context.
type PaymentMethod string

const (
	// PaymentCard is a credit or debit card payment.
	PaymentCard PaymentMethod = "CARD"
	// PaymentWallet is a hosted wallet payment.
	PaymentWallet PaymentMethod = "WALLET"
	// PaymentBankTransfer is a direct bank transfer.
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	// PaymentOther covers any method without specific shape rules.
	PaymentOther PaymentMethod = "OTHER"
)

// PaymentContext carries the payment details and capture/refund bookkeeping
// for one order. Capture and refund themselves happen in the external payment
// collaborator.
type PaymentContext struct {
	// Method selects the shape validation rules.
	Method PaymentMethod `json:"method"`
	// CardNumber is required for card payments, minimum 14 digits.
	CardNumber string `json:"card_number,omitempty"`
	// CardExpiry is required for card payments.
	CardExpiry string `json:"card_expiry,omitempty"`
	// WalletEmail is required for wallet payments.
	WalletEmail string `json:"wallet_email,omitempty"`
	// BankAccount is required for bank transfers.
	BankAccount string `json:"bank_account,omitempty"`
	// BankRouting is required for bank transfers.
	BankRouting string `json:"bank_routing,omitempty"`
	// Captured is true once the payment collaborator captured funds.
	Captured bool `json:"captured"`
	// RefundFlagged marks a captured payment handed over for refund processing.
	RefundFlagged bool `json:"refund_flagged"`
	// RefundAmount is the amount stamped when the order is refunded.
	RefundAmount decimal.Decimal `json:"refund_amount"`
	// RefundedAt is when the refund was stamped.
	RefundedAt *time.Time `json:"refunded_at,omitempty"`
}

// ShippingContext carries the destination and fulfillment timestamps.
type ShippingContext struct {
	// Region is the destination region driving tax rules.
	Region string `json:"region"`
	// Cost is the shipping charge before free-shipping eligibility.
	Cost decimal.Decimal `json:"cost"`
	// TaxExempt routes tax through the regional rule table.
	TaxExempt bool `json:"tax_exempt"`
	// ShippedAt is stamped on the transition to SHIPPED.
	ShippedAt *time.Time `json:"shipped_at,omitempty"`
	// DeliveredAt is stamped on the transition to DELIVERED.
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	// ReturnInitiatedAt is stamped on the transition to RETURNED.
	ReturnInitiatedAt *time.Time `json:"return_initiated_at,omitempty"`
}

// Line is one product entry in an order: a quantity of a product at a
// captured price, with free-form options such as size or color.
type Line struct {
	// ProductID is the product this line holds.
	ProductID string `json:"product_id"`
	// Name is the product name snapshotted at add time.
	Name string `json:"name"`
	// SKU is the stock keeping unit snapshotted at add time.
	SKU string `json:"sku"`
	// Quantity is the number of units, at least 1.
	Quantity int `json:"quantity"`
	// UnitPrice is the per-unit price.
	UnitPrice decimal.Decimal `json:"unit_price"`
	// UnitDiscount is the per-unit discount.
	UnitDiscount decimal.Decimal `json:"unit_discount"`
	// Options holds free-form variant options (e.g. size, color).
	Options map[string]string `json:"options,omitempty"`
	// Digital marks goods that need no physical fulfillment.
	Digital bool `json:"digital"`
}

// Validate checks the line is well-formed.
func (l Line) Validate() error {
	if l.ProductID == "" {
		return fmt.Errorf("missing product id: %w", ErrInvalidLine)
	}
	if l.Quantity < 1 {
		return fmt.Errorf("product %s quantity %d: %w", l.ProductID, l.Quantity, ErrInvalidLine)
	}
	return nil
}

// CombinesWith reports whether two lines may merge quantities: same product,
// same options, same price, same discount.
func (l Line) CombinesWith(other Line) bool {
	return l.ProductID == other.ProductID &&
		optionsEqual(l.Options, other.Options) &&
		l.UnitPrice.Equal(other.UnitPrice) &&
		l.UnitDiscount.Equal(other.UnitDiscount)
}

// SameOptions reports whether two lines hold the same product with the same
// option map.
func (l Line) SameOptions(other Line) bool {
	return l.ProductID == other.ProductID && optionsEqual(l.Options, other.Options)
}

func optionsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

// LineConflictError reports a line that matches an existing line's product
// and options but differs in price or discount, so the two can neither merge
// nor coexist.
type LineConflictError struct {
	ProductID string
}

// Error implements error.
func (e *LineConflictError) Error() string {
	return fmt.Sprintf("line for product %s conflicts with an existing line", e.ProductID)
}

// Unwrap lets errors.Is match ErrConflictingLine.
func (e *LineConflictError) Unwrap() error {
	return ErrConflictingLine
}

// Order is the aggregate root of the lifecycle. It owns its lines exclusively
// and is mutated only through the lifecycle service and its own methods.
// Terminal orders are final records, never deleted.
type Order struct {
	identity.Identity

	// Number is the unique order number, immutable once assigned.
	Number string `json:"number"`
	// CustomerID is the opaque id of the ordering customer.
	CustomerID string `json:"customer_id"`
	// Lines are the order's product entries.
	Lines []Line `json:"lines"`
	// State is the current lifecycle state.
	State State `json:"state"`
	// Tax is the stated tax amount, used when no regional rule applies.
	Tax decimal.Decimal `json:"tax"`
	// Discount is the order-level discount amount.
	Discount decimal.Decimal `json:"discount"`
	// Payment is the payment context.
	Payment PaymentContext `json:"payment"`
	// Shipping is the shipping context.
	Shipping ShippingContext `json:"shipping"`

	// generation counts pricing-relevant mutations; pricing memoization keys
	// off it, so bumping it is the cache invalidation.
	generation uint64
}

// NewOrder creates an order in CREATED with a fresh number.
func NewOrder(customerID string, now time.Time) *Order {
	id := identity.New(now)
	return &Order{
		Identity:   id,
		Number:     orderNumber(id.ID),
		CustomerID: customerID,
		State:      StateCreated,
		generation: 1,
	}
}

// orderNumber derives the immutable order number from the aggregate id.
func orderNumber(id uuid.UUID) string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:12])
}

// Generation returns the current mutation generation.
func (o *Order) Generation() uint64 {
	return o.generation
}

// CanBeModified reports whether lines may still be added or removed.
func (o *Order) CanBeModified() bool {
	return o.State.Modifiable()
}

// CanBeCancelled reports whether the order may still be cancelled: always in
// CREATED, PROCESSING, and ON_HOLD, and within the grace window after
// shipping.
func (o *Order) CanBeCancelled(now time.Time, shippedWindow time.Duration) bool {
	switch o.State {
	case StateCreated, StateProcessing, StateOnHold:
		return true
	case StateShipped:
		return o.Shipping.ShippedAt != nil && now.Sub(*o.Shipping.ShippedAt) < shippedWindow
	}
	return false
}

// AddLine merges or appends a line. A line combinable with an existing one
// merges quantities; one that matches product and options but differs in
// price or discount conflicts; distinct options coexist as separate lines.
func (o *Order) AddLine(line Line, now time.Time) error {
	if !o.CanBeModified() {
		return fmt.Errorf("order %s in state %s: %w", o.Number, o.State, ErrOrderLocked)
	}
	if err := line.Validate(); err != nil {
		return err
	}

	for i := range o.Lines {
		if o.Lines[i].CombinesWith(line) {
			o.Lines[i].Quantity += line.Quantity
			o.bump(now)
			return nil
		}
		if o.Lines[i].SameOptions(line) {
			return &LineConflictError{ProductID: line.ProductID}
		}
	}

	o.Lines = append(o.Lines, line)
	o.bump(now)
	return nil
}

// RemoveLine drops the line holding a product. Removing an absent product is
// a no-op; removal from a locked order is an error.
func (o *Order) RemoveLine(productID string, now time.Time) error {
	if !o.CanBeModified() {
		return fmt.Errorf("order %s in state %s: %w", o.Number, o.State, ErrOrderLocked)
	}
	for i := range o.Lines {
		if o.Lines[i].ProductID == productID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			o.bump(now)
			return nil
		}
	}
	return nil
}

// SetTax sets the stated tax amount.
func (o *Order) SetTax(amount decimal.Decimal, now time.Time) {
	o.Tax = amount
	o.bump(now)
}

// SetDiscount sets the order-level discount.
func (o *Order) SetDiscount(amount decimal.Decimal, now time.Time) {
	o.Discount = amount
	o.bump(now)
}

// SetShipping replaces the shipping cost, region, and exemption flag.
func (o *Order) SetShipping(region string, cost decimal.Decimal, taxExempt bool, now time.Time) {
	o.Shipping.Region = region
	o.Shipping.Cost = cost
	o.Shipping.TaxExempt = taxExempt
	o.bump(now)
}

// SetPayment replaces the payment context.
func (o *Order) SetPayment(p PaymentContext, now time.Time) {
	o.Payment = p
	o.bump(now)
}

// Quote builds the pricing input for the order's current lines and context.
func (o *Order) Quote() pricing.Quote {
	lines := make([]pricing.QuoteLine, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = pricing.QuoteLine{
			UnitPrice:    l.UnitPrice,
			UnitDiscount: l.UnitDiscount,
			Quantity:     l.Quantity,
		}
	}
	return pricing.Quote{
		Lines:        lines,
		Tax:          o.Tax,
		Discount:     o.Discount,
		ShippingCost: o.Shipping.Cost,
		Region:       o.Shipping.Region,
		TaxExempt:    o.Shipping.TaxExempt,
		PaidByCard:   o.Payment.Method == PaymentCard,
	}
}

// bump advances the mutation generation and the updated timestamp.
func (o *Order) bump(now time.Time) {
	o.generation++
	o.Touch(now)
}
