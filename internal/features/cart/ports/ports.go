package ports

import (
	"context"

	"order-engine/internal/features/cart/domain"
)

// InventoryLookup answers advisory stock questions at cart time. The
// authoritative check is the reservation performed at checkout, since stock
// can change in between. This is a Secondary Port (Driven Port).
type InventoryLookup interface {
	// Exists reports whether the product has an inventory record.
	Exists(productID string) bool
	// CurrentStock returns the available quantity for a product and optional variant.
	CurrentStock(productID, variantID string) int
}

// CartStore persists cart snapshots so carts outlive a single process and, for
// authenticated customers, a single session.
type CartStore interface {
	// Save persists the cart under its owner's key.
	Save(ctx context.Context, cart *domain.Cart) error
	// Find loads the cart for an owner. Returns (nil, nil) when none exists.
	Find(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	// Delete removes the cart for an owner.
	Delete(ctx context.Context, owner domain.Owner) error
}
