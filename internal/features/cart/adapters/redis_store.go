package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-engine/internal/core/cache"
	"order-engine/internal/features/cart/domain"
)

// RedisCartStore implements ports.CartStore on top of the cache adapter.
// Customer carts persist indefinitely so they survive across sessions;
// anonymous session carts expire after the configured TTL.
type RedisCartStore struct {
	cache   cache.Cache
	anonTTL time.Duration
}

// NewRedisCartStore creates a RedisCartStore.
func NewRedisCartStore(c cache.Cache, anonTTL time.Duration) *RedisCartStore {
	return &RedisCartStore{
		cache:   c,
		anonTTL: anonTTL,
	}
}

// Save persists the cart as a JSON snapshot under its owner's key.
func (r *RedisCartStore) Save(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("failed to marshal cart: %w", err)
	}

	ttl := time.Duration(0)
	if cart.Owner.Anonymous() {
		ttl = r.anonTTL
	}

	if err := r.cache.Set(ctx, cart.Owner.Key(), data, ttl); err != nil {
		return fmt.Errorf("failed to save cart: %w", err)
	}
	return nil
}

// Find loads the cart for an owner. A missing cart is (nil, nil), not an error.
func (r *RedisCartStore) Find(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	data, err := r.cache.Get(ctx, owner.Key())
	if err != nil {
		if errors.Is(err, cache.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cart: %w", err)
	}
	return &cart, nil
}

// Delete removes the stored cart for an owner.
func (r *RedisCartStore) Delete(ctx context.Context, owner domain.Owner) error {
	if err := r.cache.Delete(ctx, owner.Key()); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}
