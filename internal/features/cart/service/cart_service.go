package service

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"order-engine/internal/core/clock"
	"order-engine/internal/features/cart/domain"
	"order-engine/internal/features/cart/ports"
)

// CartService opens carts and hands out live handles. It keeps one handle per
// owner so every caller shares the same per-cart lock.
type CartService struct {
	inventory ports.InventoryLookup
	store     ports.CartStore
	clock     clock.Clock
	log       *zap.Logger

	mu   sync.Mutex
	live map[string]*LiveCart
}

// NewCartService creates a CartService. The store may be nil for purely
// in-memory carts.
func NewCartService(inventory ports.InventoryLookup, store ports.CartStore, clk clock.Clock, log *zap.Logger) *CartService {
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CartService{
		inventory: inventory,
		store:     store,
		clock:     clk,
		log:       log,
		live:      make(map[string]*LiveCart),
	}
}

// Open returns the live cart for an owner, loading it from the store or
// creating it on first interaction.
func (s *CartService) Open(ctx context.Context, owner domain.Owner) (*LiveCart, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if lc, ok := s.live[owner.Key()]; ok {
		return lc, nil
	}

	var cart *domain.Cart
	if s.store != nil {
		stored, err := s.store.Find(ctx, owner)
		if err != nil {
			return nil, fmt.Errorf("load cart for %s: %w", owner.Key(), err)
		}
		cart = stored
	}
	if cart == nil {
		created, err := domain.NewCart(owner, s.clock.Now())
		if err != nil {
			return nil, err
		}
		cart = created
	}

	lc := &LiveCart{svc: s, cart: cart}
	s.live[owner.Key()] = lc
	return lc, nil
}

// Discard drops the live handle and the stored snapshot for an owner,
// typically after checkout.
func (s *CartService) Discard(ctx context.Context, owner domain.Owner) error {
	s.mu.Lock()
	delete(s.live, owner.Key())
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, owner); err != nil {
		return fmt.Errorf("discard cart for %s: %w", owner.Key(), err)
	}
	return nil
}

// LiveCart is a shared handle on one cart. Mutations take the exclusive lock,
// reads take the shared lock, so reads never block each other while writes
// exclude everything.
type LiveCart struct {
	svc *CartService

	mu   sync.RWMutex
	cart *domain.Cart
}

// AddItem merges qty units of a product into the cart. If the product is
// already present the quantities sum, and stock is validated for the merged
// total; an insufficient-stock check leaves the cart untouched.
func (lc *LiveCart) AddItem(ctx context.Context, product domain.ProductInfo, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("add %s: %w", product.ID, domain.ErrInvalidQuantity)
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	target := qty
	if i := lc.cart.FindLine(product.ID); i >= 0 {
		target += lc.cart.Lines[i].Quantity
	}
	if err := lc.validateStock(product.ID, target); err != nil {
		return err
	}

	lc.cart.Upsert(product, qty, lc.svc.clock.Now())
	return lc.persist(ctx)
}

// UpdateItemQuantity sets a line's quantity outright. Zero removes the line,
// negative is a validation error, and any other value is stock-validated for
// the new absolute quantity before it applies.
func (lc *LiveCart) UpdateItemQuantity(ctx context.Context, productID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("update %s: %w", productID, domain.ErrInvalidQuantity)
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()

	if qty > 0 {
		if err := lc.validateStock(productID, qty); err != nil {
			return err
		}
	}

	lc.cart.SetQuantity(productID, qty, lc.svc.clock.Now())
	return lc.persist(ctx)
}

// RemoveItem drops a product from the cart. Absent products are a no-op, not
// an error.
func (lc *LiveCart) RemoveItem(ctx context.Context, productID string) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.cart.Remove(productID, lc.svc.clock.Now())
	return lc.persist(ctx)
}

// Clear empties the cart.
func (lc *LiveCart) Clear(ctx context.Context) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.cart.Clear(lc.svc.clock.Now())
	return lc.persist(ctx)
}

// TotalItemCount sums the quantities across all lines.
func (lc *LiveCart) TotalItemCount() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.cart.TotalItemCount()
}

// IsEmpty reports whether the cart has no lines.
func (lc *LiveCart) IsEmpty() bool {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.cart.IsEmpty()
}

// Snapshot returns a copy of the cart lines; mutating it does not touch the cart.
func (lc *LiveCart) Snapshot() []domain.Line {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.cart.Snapshot()
}

// Owner returns the cart's owner.
func (lc *LiveCart) Owner() domain.Owner {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.cart.Owner
}

// validateStock is the advisory cart-time check against current inventory.
// The caller holds the exclusive lock so the check-then-act stays atomic with
// respect to this cart.
func (lc *LiveCart) validateStock(productID string, qty int) error {
	if lc.svc.inventory == nil {
		return nil
	}
	if !lc.svc.inventory.Exists(productID) {
		return fmt.Errorf("product %s: %w", productID, domain.ErrUnknownProduct)
	}
	if available := lc.svc.inventory.CurrentStock(productID, ""); available < qty {
		return fmt.Errorf("product %s: requested %d, available %d: %w",
			productID, qty, available, domain.ErrInsufficientStock)
	}
	return nil
}

// persist writes the cart through to the store. The caller holds the
// exclusive lock.
func (lc *LiveCart) persist(ctx context.Context) error {
	if lc.svc.store == nil {
		return nil
	}
	if err := lc.svc.store.Save(ctx, lc.cart); err != nil {
		lc.svc.log.Error("failed to persist cart",
			zap.String("owner", lc.cart.Owner.Key()),
			zap.Error(err),
		)
		return fmt.Errorf("persist cart for %s: %w", lc.cart.Owner.Key(), err)
	}
	return nil
}
