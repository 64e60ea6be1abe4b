package domain

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidQuantity is returned when a quantity argument is zero or negative
	// where a positive amount is required.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrNegativeQuantity is returned when a quantity argument is negative.
	ErrNegativeQuantity = errors.New("quantity must not be negative")
)

// Key identifies one inventory record: a product, optionally narrowed to a
// variant and a stock location.
type Key struct {
	// ProductID is the product identifier.
	ProductID string `json:"product_id"`
	// VariantID optionally narrows the record to a product variant.
	VariantID string `json:"variant_id,omitempty"`
	// Location optionally narrows the record to a stock location.
	Location string `json:"location,omitempty"`
}

// ProductKey builds a Key for a bare product with no variant or location.
func ProductKey(productID string) Key {
	return Key{ProductID: productID}
}

// String renders the key as "product[/variant][@location]".
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.ProductID)
	if k.VariantID != "" {
		b.WriteString("/")
		b.WriteString(k.VariantID)
	}
	if k.Location != "" {
		b.WriteString("@")
		b.WriteString(k.Location)
	}
	return b.String()
}

// Record tracks available and reserved stock for one inventory key.
// All mutation goes through the ledger, which serializes access per key.
type Record struct {
	// Key identifies the product/variant/location this record tracks.
	Key Key `json:"key"`
	// Available is the quantity free to be reserved. Never negative.
	Available int `json:"available"`
	// Reserved is the quantity claimed by pending orders. Never negative.
	Reserved int `json:"reserved"`
	// ReorderPoint is the available quantity at or below which stock is low.
	ReorderPoint int `json:"reorder_point"`
	// MaxStockLevel is the soft ceiling on available+reserved.
	MaxStockLevel int `json:"max_stock_level"`
	// FlaggedForReview marks the record as inconsistent, pending operator reconciliation.
	FlaggedForReview bool `json:"flagged_for_review"`
	// RestockAttempts counts consecutive low-stock triggers without resolution.
	RestockAttempts int `json:"restock_attempts"`
}

// CanReserve reports whether qty units can be claimed from available stock.
func (r *Record) CanReserve(qty int) bool {
	return r.Available >= qty
}

// ApplyReserve moves qty units from available to reserved. The caller must
// have checked CanReserve under the same per-key lock.
func (r *Record) ApplyReserve(qty int) {
	r.Available -= qty
	r.Reserved += qty
}

// ApplyRelease moves qty units from reserved back to available. If fewer than
// qty units are reserved, it releases everything still reserved, flags the
// record for review, and reports the inconsistency. Releasing against an
// already-empty reservation is a no-op, keeping release idempotent.
func (r *Record) ApplyRelease(qty int) (released int, inconsistent bool) {
	if r.Reserved < qty {
		released = r.Reserved
		r.Available += released
		r.Reserved = 0
		if released < qty {
			r.FlaggedForReview = true
			return released, true
		}
		return released, false
	}
	r.Reserved -= qty
	r.Available += qty
	return qty, false
}

// IsLowStock reports whether available stock has fallen to or below the
// reorder point scaled by the given class multiplier.
func (r *Record) IsLowStock(multiplier float64) bool {
	threshold := float64(r.ReorderPoint) * multiplier
	return float64(r.Available) <= threshold
}

// OverCapacity reports whether available+reserved exceeds the soft max level.
func (r *Record) OverCapacity() bool {
	return r.MaxStockLevel > 0 && r.Available+r.Reserved > r.MaxStockLevel
}

// Reservation is one requested claim: a quantity against an inventory key.
type Reservation struct {
	// Key identifies the stock to claim.
	Key Key `json:"key"`
	// Quantity is the number of units requested.
	Quantity int `json:"quantity"`
}

// ReservationResult is the outcome of one reservation attempt. It is built
// fresh per attempt and not mutated afterwards.
type ReservationResult struct {
	// Successful is true when every requested quantity was reserved.
	Successful bool `json:"successful"`
	// Message is a human-readable summary of the outcome.
	Message string `json:"message"`
	// Unavailable maps product id to the requested-but-unavailable quantity
	// for every product the reservation could not satisfy.
	Unavailable map[string]int `json:"unavailable,omitempty"`
}

// Reserved builds a successful ReservationResult.
func Reserved() ReservationResult {
	return ReservationResult{
		Successful: true,
		Message:    "all items reserved",
	}
}

// ShortOf builds a failed ReservationResult carrying the per-product shortfall.
func ShortOf(unavailable map[string]int) ReservationResult {
	return ReservationResult{
		Successful:  false,
		Message:     "insufficient stock",
		Unavailable: unavailable,
	}
}
