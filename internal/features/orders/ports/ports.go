package ports

import (
	"context"

	"github.com/shopspring/decimal"

	invdomain "order-engine/internal/features/inventory/domain"
	"order-engine/internal/features/orders/domain"
)

// PaymentValidator checks a payment context's shape for its method. This is a
// Secondary Port (Driven Port); the engine ships a default shape validator.
type PaymentValidator interface {
	Validate(p domain.PaymentContext) error
}

// PaymentProcessor is the external payment collaborator. Capture happens
// outside the core; the lifecycle invokes Refund on cancellation of captured
// payments and on the REFUNDED transition.
type PaymentProcessor interface {
	Refund(ctx context.Context, orderID string, amount decimal.Decimal) error
}

// StockReserver is the lifecycle's view of the inventory ledger.
type StockReserver interface {
	// ReserveAll claims every requested quantity or none of them.
	ReserveAll(ctx context.Context, requests []invdomain.Reservation) (invdomain.ReservationResult, error)
	// Release returns reserved units to available stock; safe to repeat.
	Release(ctx context.Context, key invdomain.Key, qty int) error
}

// NotificationSink receives lifecycle events. Implementations are external
// collaborators (email, webhooks) and out of scope here.
type NotificationSink interface {
	StateChanged(ctx context.Context, orderID string, from, to domain.State)
}
