package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"order-engine/internal/core/identity"
)

var (
	// ErrInvalidQuantity is returned when a cart mutation carries a negative
	// quantity, or zero where a positive amount is required.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidOwner is returned when a cart owner has neither or both of a
	// customer id and a session id.
	ErrInvalidOwner = errors.New("cart owner must be a customer id or a session id, not both")
	// ErrUnknownProduct is returned when a product has no inventory record.
	ErrUnknownProduct = errors.New("unknown product")
	// ErrInsufficientStock is returned when cart-time validation finds less
	// stock than the requested quantity.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// Owner identifies who a cart belongs to: an authenticated customer or an
// anonymous session, never both.
type Owner struct {
	// CustomerID is set for authenticated customers.
	CustomerID string `json:"customer_id,omitempty"`
	// SessionID is set for anonymous sessions.
	SessionID string `json:"session_id,omitempty"`
}

// Validate enforces the customer-XOR-session rule.
func (o Owner) Validate() error {
	if (o.CustomerID == "") == (o.SessionID == "") {
		return ErrInvalidOwner
	}
	return nil
}

// Anonymous reports whether the cart belongs to an anonymous session.
func (o Owner) Anonymous() bool {
	return o.CustomerID == ""
}

// Key renders a stable storage key for the owner.
func (o Owner) Key() string {
	if o.CustomerID != "" {
		return "cart:customer:" + o.CustomerID
	}
	return "cart:session:" + o.SessionID
}

// ProductInfo is the denormalized product snapshot captured on a cart line at
// add time. The catalog itself is an external collaborator.
type ProductInfo struct {
	// ID is the product identifier.
	ID string `json:"id"`
	// Name is the product display name at add time.
	Name string `json:"name"`
	// SKU is the stock keeping unit at add time.
	SKU string `json:"sku,omitempty"`
	// ImageURL is the product image at add time.
	ImageURL string `json:"image_url,omitempty"`
	// UnitPrice is the per-unit price at add time.
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Line is one product entry in a cart. A cart holds at most one line per
// product id.
type Line struct {
	// ProductID is the product this line holds.
	ProductID string `json:"product_id"`
	// Name is the denormalized product name.
	Name string `json:"name"`
	// SKU is the denormalized stock keeping unit.
	SKU string `json:"sku,omitempty"`
	// ImageURL is the denormalized product image.
	ImageURL string `json:"image_url,omitempty"`
	// Quantity is the number of units, always positive.
	Quantity int `json:"quantity"`
	// UnitPrice is the per-unit price captured at add time.
	UnitPrice decimal.Decimal `json:"unit_price"`
	// AddedAt is when the line first entered the cart.
	AddedAt time.Time `json:"added_at"`
}

// Cart is the mutable collection of lines feeding an order. All concurrent
// access goes through the service layer's lock; the domain type itself is not
// safe for unsynchronized sharing.
type Cart struct {
	identity.Identity

	// Owner is the customer or session this cart belongs to.
	Owner Owner `json:"owner"`
	// Lines are the cart's product entries, in insertion order.
	Lines []Line `json:"lines"`
}

// NewCart creates an empty cart for an owner.
func NewCart(owner Owner, now time.Time) (*Cart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	return &Cart{
		Identity: identity.New(now),
		Owner:    owner,
	}, nil
}

// FindLine returns the index of the line holding a product, or -1.
func (c *Cart) FindLine(productID string) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Upsert merges qty units of a product into the cart, creating the line on
// first add. The caller validates stock beforehand.
func (c *Cart) Upsert(product ProductInfo, qty int, now time.Time) {
	if i := c.FindLine(product.ID); i >= 0 {
		c.Lines[i].Quantity += qty
		c.Touch(now)
		return
	}
	c.Lines = append(c.Lines, Line{
		ProductID: product.ID,
		Name:      product.Name,
		SKU:       product.SKU,
		ImageURL:  product.ImageURL,
		Quantity:  qty,
		UnitPrice: product.UnitPrice,
		AddedAt:   now,
	})
	c.Touch(now)
}

// SetQuantity replaces a line's quantity. A quantity of zero removes the line.
func (c *Cart) SetQuantity(productID string, qty int, now time.Time) {
	i := c.FindLine(productID)
	if i < 0 {
		return
	}
	if qty == 0 {
		c.Remove(productID, now)
		return
	}
	c.Lines[i].Quantity = qty
	c.Touch(now)
}

// Remove drops a product's line. Removing an absent product is a no-op.
func (c *Cart) Remove(productID string, now time.Time) {
	i := c.FindLine(productID)
	if i < 0 {
		return
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	c.Touch(now)
}

// Clear drops every line.
func (c *Cart) Clear(now time.Time) {
	c.Lines = nil
	c.Touch(now)
}

// TotalItemCount sums the quantities across all lines.
func (c *Cart) TotalItemCount() int {
	count := 0
	for i := range c.Lines {
		count += c.Lines[i].Quantity
	}
	return count
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Snapshot returns a copy of the cart lines detached from internal state.
func (c *Cart) Snapshot() []Line {
	out := make([]Line, len(c.Lines))
	copy(out, c.Lines)
	return out
}
