package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"order-engine/internal/core/clock"
	cartdomain "order-engine/internal/features/cart/domain"
	invdomain "order-engine/internal/features/inventory/domain"
	"order-engine/internal/features/orders/domain"
	"order-engine/internal/features/orders/ports"
	pricingdomain "order-engine/internal/features/pricing/domain"
	pricingservice "order-engine/internal/features/pricing/service"
)

// Config holds the lifecycle policy.
type Config struct {
	// ShippedCancelWindow is how long after shipping an order may still be
	// cancelled.
	ShippedCancelWindow time.Duration
}

// Lifecycle owns order state: it validates transitions against the lifecycle
// table, runs the transition's side effects, and only then commits the state
// change, so a failed transition leaves the order untouched and retryable as
// a whole.
type Lifecycle struct {
	cfg       Config
	calc      *pricingservice.Calculator
	stock     ports.StockReserver
	payments  ports.PaymentProcessor
	validator ports.PaymentValidator
	sink      ports.NotificationSink
	clock     clock.Clock
	log       *zap.Logger
}

// NewLifecycle creates a Lifecycle. A nil validator falls back to the default
// shape validator; payments, sink, and log may be nil.
func NewLifecycle(
	cfg Config,
	calc *pricingservice.Calculator,
	stock ports.StockReserver,
	payments ports.PaymentProcessor,
	validator ports.PaymentValidator,
	sink ports.NotificationSink,
	clk clock.Clock,
	log *zap.Logger,
) *Lifecycle {
	if cfg.ShippedCancelWindow <= 0 {
		cfg.ShippedCancelWindow = 24 * time.Hour
	}
	if validator == nil {
		validator = ShapeValidator{}
	}
	if clk == nil {
		clk = clock.System{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Lifecycle{
		cfg:       cfg,
		calc:      calc,
		stock:     stock,
		payments:  payments,
		validator: validator,
		sink:      sink,
		clock:     clk,
		log:       log,
	}
}

// Create starts an empty order in CREATED for a customer.
func (s *Lifecycle) Create(customerID string) *domain.Order {
	return domain.NewOrder(customerID, s.clock.Now())
}

// Checkout materializes an order from a cart snapshot and reserves stock for
// every line, all-or-nothing. On a shortfall no order is created and the
// result names each product's missing quantity.
func (s *Lifecycle) Checkout(ctx context.Context, customerID string, lines []cartdomain.Line) (*domain.Order, invdomain.ReservationResult, error) {
	if len(lines) == 0 {
		return nil, invdomain.ReservationResult{}, domain.ErrEmptyOrder
	}

	order := domain.NewOrder(customerID, s.clock.Now())
	requests := make([]invdomain.Reservation, 0, len(lines))
	for _, cl := range lines {
		line := domain.Line{
			ProductID: cl.ProductID,
			Name:      cl.Name,
			SKU:       cl.SKU,
			Quantity:  cl.Quantity,
			UnitPrice: cl.UnitPrice,
		}
		if err := order.AddLine(line, s.clock.Now()); err != nil {
			return nil, invdomain.ReservationResult{}, err
		}
		requests = append(requests, invdomain.Reservation{
			Key:      invdomain.ProductKey(cl.ProductID),
			Quantity: cl.Quantity,
		})
	}

	result, err := s.stock.ReserveAll(ctx, requests)
	if err != nil {
		return nil, invdomain.ReservationResult{}, err
	}
	if !result.Successful {
		return nil, result, nil
	}

	s.log.Info("order checked out",
		zap.String("order", order.Number),
		zap.String("customer", customerID),
		zap.Int("lines", len(order.Lines)),
	)
	return order, result, nil
}

// Transition moves an order to the target state. The caller passes the state
// it last read; if the order has moved on, the transition fails with a
// conflict instead of blindly overwriting. Side effects run before the state
// commit, so a failed side effect leaves the state unchanged and the whole
// transition retryable.
func (s *Lifecycle) Transition(ctx context.Context, order *domain.Order, expectedFrom, to domain.State) error {
	if order.State != expectedFrom {
		return &domain.ConflictError{Expected: expectedFrom, Actual: order.State}
	}
	if !order.State.CanTransitionTo(to) {
		return &domain.TransitionError{From: order.State, To: to}
	}

	if err := s.applySideEffects(ctx, order, to); err != nil {
		return err
	}

	from := order.State
	order.State = to
	order.Touch(s.clock.Now())

	s.log.Info("order transitioned",
		zap.String("order", order.Number),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	if s.sink != nil {
		s.sink.StateChanged(ctx, order.ID.String(), from, to)
	}
	return nil
}

// CurrentTotal computes the order's totals, memoized against its mutation
// generation.
func (s *Lifecycle) CurrentTotal(order *domain.Order) pricingdomain.Totals {
	return s.calc.Total(order.ID.String(), order.Generation(), order.Quote())
}

// CanBeCancelled applies the cancellation policy at the current time.
func (s *Lifecycle) CanBeCancelled(order *domain.Order) bool {
	return order.CanBeCancelled(s.clock.Now(), s.cfg.ShippedCancelWindow)
}

// applySideEffects runs the side effects of entering a state. Effects that
// can fail run before any mutation; mutations that do run are idempotent, so
// retrying the whole transition is safe.
func (s *Lifecycle) applySideEffects(ctx context.Context, order *domain.Order, to domain.State) error {
	now := s.clock.Now()

	switch to {
	case domain.StateProcessing:
		if len(order.Lines) == 0 {
			return fmt.Errorf("order %s: %w", order.Number, domain.ErrEmptyOrder)
		}
		for _, line := range order.Lines {
			if err := line.Validate(); err != nil {
				return err
			}
		}
		if err := s.validator.Validate(order.Payment); err != nil {
			return err
		}

	case domain.StateShipped:
		order.Shipping.ShippedAt = &now

	case domain.StateDelivered:
		order.Shipping.DeliveredAt = &now

	case domain.StateCancelled:
		if err := s.releaseLines(ctx, order); err != nil {
			return err
		}
		if order.Payment.Captured {
			// Refund-after-cancel is handed to the payment collaborator here;
			// the order itself stays CANCELLED, never REFUNDED.
			if err := s.refund(ctx, order); err != nil {
				return err
			}
			order.Payment.RefundFlagged = true
		}

	case domain.StateReturned:
		order.Shipping.ReturnInitiatedAt = &now

	case domain.StateRefunded:
		if err := s.refund(ctx, order); err != nil {
			return err
		}
		order.Payment.RefundFlagged = true
		order.Payment.RefundedAt = &now
	}

	return nil
}

// releaseLines returns every line's reservation to available stock. Release
// is idempotent in the ledger, so re-running a failed cancellation is safe.
func (s *Lifecycle) releaseLines(ctx context.Context, order *domain.Order) error {
	if s.stock == nil {
		return nil
	}
	for _, line := range order.Lines {
		if err := s.stock.Release(ctx, invdomain.ProductKey(line.ProductID), line.Quantity); err != nil {
			return fmt.Errorf("release %s: %w", line.ProductID, err)
		}
	}
	return nil
}

// refund stamps the refund amount from the current total and hands the refund
// to the payment collaborator.
func (s *Lifecycle) refund(ctx context.Context, order *domain.Order) error {
	amount := pricingdomain.Round2(s.CurrentTotal(order).Total)
	if s.payments != nil {
		if err := s.payments.Refund(ctx, order.ID.String(), amount); err != nil {
			return fmt.Errorf("refund order %s: %w", order.Number, err)
		}
	}
	order.Payment.RefundAmount = amount
	return nil
}
