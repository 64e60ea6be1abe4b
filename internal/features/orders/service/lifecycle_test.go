package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-engine/internal/core/clock"
	cartdomain "order-engine/internal/features/cart/domain"
	invdomain "order-engine/internal/features/inventory/domain"
	invservice "order-engine/internal/features/inventory/service"
	"order-engine/internal/features/orders/domain"
	pricingservice "order-engine/internal/features/pricing/service"
)

// mockPayments records refunds and can be told to fail.
type mockPayments struct {
	refunds map[string]decimal.Decimal
	err     error
}

func newMockPayments() *mockPayments {
	return &mockPayments{refunds: make(map[string]decimal.Decimal)}
}

// Refund implements PaymentProcessor.
func (m *mockPayments) Refund(_ context.Context, orderID string, amount decimal.Decimal) error {
	if m.err != nil {
		return m.err
	}
	m.refunds[orderID] = amount
	return nil
}

// mockLifecycleSink records state-change events.
type mockLifecycleSink struct {
	events []string
}

// StateChanged implements NotificationSink.
func (m *mockLifecycleSink) StateChanged(_ context.Context, _ string, from, to domain.State) {
	m.events = append(m.events, string(from)+"->"+string(to))
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	lifecycle *Lifecycle
	ledger    *invservice.Ledger
	payments  *mockPayments
	sink      *mockLifecycleSink
	clock     *clock.Fixed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledger := invservice.NewLedger(invservice.Config{EscalationThreshold: 3}, nil, nil, nil)
	// Threshold above the test subtotals so shipping stays chargeable.
	calc := pricingservice.NewCalculator(pricingservice.Config{
		FreeShippingSubtotal: money("100"),
		FreeShippingMinLines: 3,
	})
	payments := newMockPayments()
	sink := &mockLifecycleSink{}
	clk := &clock.Fixed{Instant: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	lifecycle := NewLifecycle(
		Config{ShippedCancelWindow: 24 * time.Hour},
		calc, ledger, payments, nil, sink, clk, nil,
	)
	return &fixture{
		lifecycle: lifecycle,
		ledger:    ledger,
		payments:  payments,
		sink:      sink,
		clock:     clk,
	}
}

func cardPayment() domain.PaymentContext {
	return domain.PaymentContext{
		Method:     domain.PaymentCard,
		CardNumber: "4111111111111111",
		CardExpiry: "12/27",
	}
}

// checkoutOrder runs a two-product checkout and returns the created order.
func checkoutOrder(t *testing.T, f *fixture) *domain.Order {
	t.Helper()

	require.NoError(t, f.ledger.Register(invdomain.ProductKey("A"), 10, 0, 100))
	require.NoError(t, f.ledger.Register(invdomain.ProductKey("B"), 10, 0, 100))

	order, res, err := f.lifecycle.Checkout(context.Background(), "cust-1", []cartdomain.Line{
		{ProductID: "A", Name: "Alpha", Quantity: 2, UnitPrice: money("20.00")},
		{ProductID: "B", Name: "Beta", Quantity: 1, UnitPrice: money("15.00")},
	})
	require.NoError(t, err)
	require.True(t, res.Successful)
	require.NotNil(t, order)
	return order
}

// TestLifecycle_Checkout verifies the cart-to-order flow reserves stock.
func TestLifecycle_Checkout(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)

	assert.Equal(t, domain.StateCreated, order.State)
	assert.Len(t, order.Lines, 2)
	assert.Equal(t, "Alpha", order.Lines[0].Name)
	assert.Equal(t, 8, f.ledger.CurrentAvailable(invdomain.ProductKey("A")))
	assert.Equal(t, 2, f.ledger.CurrentReserved(invdomain.ProductKey("A")))
	assert.Equal(t, 1, f.ledger.CurrentReserved(invdomain.ProductKey("B")))
}

// TestLifecycle_CheckoutShortfall verifies no order is created when stock is
// short, and nothing stays reserved.
func TestLifecycle_CheckoutShortfall(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ledger.Register(invdomain.ProductKey("A"), 1, 0, 100))

	order, res, err := f.lifecycle.Checkout(context.Background(), "cust-1", []cartdomain.Line{
		{ProductID: "A", Name: "Alpha", Quantity: 5, UnitPrice: money("20.00")},
	})
	require.NoError(t, err)
	assert.Nil(t, order)
	assert.False(t, res.Successful)
	assert.Equal(t, 4, res.Unavailable["A"])
	assert.Equal(t, 1, f.ledger.CurrentAvailable(invdomain.ProductKey("A")))
	assert.Equal(t, 0, f.ledger.CurrentReserved(invdomain.ProductKey("A")))
}

// TestLifecycle_CheckoutEmptyCart verifies an empty cart cannot check out.
func TestLifecycle_CheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.lifecycle.Checkout(context.Background(), "cust-1", nil)
	assert.ErrorIs(t, err, domain.ErrEmptyOrder)
}

// TestLifecycle_ExampleTotal verifies the reference scenario: subtotal 55.00,
// tax 5.50, discount 10.00, shipping 5.00 (not free) totals 55.50.
func TestLifecycle_ExampleTotal(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)

	now := f.clock.Now()
	order.SetTax(money("5.50"), now)
	order.SetDiscount(money("10.00"), now)
	order.SetShipping("WA", money("5.00"), false, now)

	totals := f.lifecycle.CurrentTotal(order).Rounded()
	assert.True(t, totals.Subtotal.Equal(money("55.00")), "subtotal %s", totals.Subtotal)
	assert.True(t, totals.Shipping.Equal(money("5.00")))
	assert.True(t, totals.Total.Equal(money("55.50")), "total %s", totals.Total)
}

// TestLifecycle_TotalTracksLineMutations verifies the memoized total follows
// line adds and removals.
func TestLifecycle_TotalTracksLineMutations(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)

	first := f.lifecycle.CurrentTotal(order)
	assert.True(t, first.Subtotal.Equal(money("55.00")))

	require.NoError(t, order.AddLine(domain.Line{
		ProductID: "C", Name: "Gamma", Quantity: 1, UnitPrice: money("45.00"),
	}, f.clock.Now()))

	second := f.lifecycle.CurrentTotal(order)
	assert.True(t, second.Subtotal.Equal(money("100.00")), "subtotal %s", second.Subtotal)

	require.NoError(t, order.RemoveLine("C", f.clock.Now()))
	third := f.lifecycle.CurrentTotal(order)
	assert.True(t, third.Subtotal.Equal(money("55.00")))
}

// TestLifecycle_TransitionHappyPath walks CREATED through COMPLETED and
// checks the stamps along the way.
func TestLifecycle_TransitionHappyPath(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)
	order.SetPayment(cardPayment(), f.clock.Now())
	ctx := context.Background()

	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateProcessing))
	assert.Equal(t, domain.StateProcessing, order.State)

	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateProcessing, domain.StateShipped))
	require.NotNil(t, order.Shipping.ShippedAt)
	assert.Equal(t, f.clock.Now(), *order.Shipping.ShippedAt)

	f.clock.Advance(48 * time.Hour)
	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateShipped, domain.StateDelivered))
	require.NotNil(t, order.Shipping.DeliveredAt)
	assert.Equal(t, f.clock.Now(), *order.Shipping.DeliveredAt)

	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateDelivered, domain.StateCompleted))
	assert.Equal(t, domain.StateCompleted, order.State)

	assert.Equal(t, []string{
		"CREATED->PROCESSING",
		"PROCESSING->SHIPPED",
		"SHIPPED->DELIVERED",
		"DELIVERED->COMPLETED",
	}, f.sink.events)
}

// TestLifecycle_TransitionRejected verifies off-table transitions fail with
// the attempted pair and leave state unchanged.
func TestLifecycle_TransitionRejected(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)

	err := f.lifecycle.Transition(context.Background(), order, domain.StateCreated, domain.StateShipped)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)

	var te *domain.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, domain.StateCreated, te.From)
	assert.Equal(t, domain.StateShipped, te.To)
	assert.Equal(t, domain.StateCreated, order.State)
	assert.Empty(t, f.sink.events)
}

// TestLifecycle_OptimisticConflict verifies a stale expected state is
// rejected rather than blindly overwritten.
func TestLifecycle_OptimisticConflict(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)
	order.SetPayment(cardPayment(), f.clock.Now())
	ctx := context.Background()

	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateProcessing))

	// A caller that still believes the order is CREATED conflicts.
	err := f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateCancelled)
	require.ErrorIs(t, err, domain.ErrStateConflict)

	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, domain.StateCreated, ce.Expected)
	assert.Equal(t, domain.StateProcessing, ce.Actual)
	assert.Equal(t, domain.StateProcessing, order.State)
}

// TestLifecycle_ProcessingValidation verifies the PROCESSING side effects:
// empty orders and bad payment contexts block the transition.
func TestLifecycle_ProcessingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("EmptyOrder", func(t *testing.T) {
		order := f.lifecycle.Create("cust-1")
		err := f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateProcessing)
		assert.ErrorIs(t, err, domain.ErrEmptyOrder)
		assert.Equal(t, domain.StateCreated, order.State)
	})

	t.Run("InvalidPayment", func(t *testing.T) {
		order := checkoutOrder(t, f)
		order.SetPayment(domain.PaymentContext{
			Method:     domain.PaymentCard,
			CardNumber: "1234",
		}, f.clock.Now())

		err := f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateProcessing)
		assert.ErrorIs(t, err, ErrInvalidPayment)
		assert.Equal(t, domain.StateCreated, order.State)

		// Fixing the payment makes the same transition succeed.
		order.SetPayment(cardPayment(), f.clock.Now())
		assert.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateProcessing))
	})
}

// TestLifecycle_CancelReleasesStock verifies cancellation returns every
// line's reservation and repeating the release is harmless.
func TestLifecycle_CancelReleasesStock(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)
	ctx := context.Background()

	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateCancelled))
	assert.Equal(t, domain.StateCancelled, order.State)
	assert.Equal(t, 10, f.ledger.CurrentAvailable(invdomain.ProductKey("A")))
	assert.Equal(t, 0, f.ledger.CurrentReserved(invdomain.ProductKey("A")))
	assert.Equal(t, 10, f.ledger.CurrentAvailable(invdomain.ProductKey("B")))

	// Not captured, so no refund was handed over.
	assert.Empty(t, f.payments.refunds)
	assert.False(t, order.Payment.RefundFlagged)
}

// TestLifecycle_CancelCapturedPayment verifies a captured payment is flagged
// and handed to the payment collaborator on cancellation.
func TestLifecycle_CancelCapturedPayment(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)
	payment := cardPayment()
	payment.Captured = true
	order.SetPayment(payment, f.clock.Now())
	order.SetShipping("WA", money("5.00"), false, f.clock.Now())
	ctx := context.Background()

	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateCancelled))

	assert.True(t, order.Payment.RefundFlagged)
	refunded, ok := f.payments.refunds[order.ID.String()]
	require.True(t, ok)
	assert.True(t, refunded.Equal(money("60.00")), "refunded %s", refunded)

	// Cancelled stays terminal; no path on to REFUNDED.
	err := f.lifecycle.Transition(ctx, order, domain.StateCancelled, domain.StateRefunded)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

// TestLifecycle_CancelRetryAfterRefundFailure verifies a failed side effect
// blocks the state commit and the whole transition retries cleanly.
func TestLifecycle_CancelRetryAfterRefundFailure(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)
	payment := cardPayment()
	payment.Captured = true
	order.SetPayment(payment, f.clock.Now())
	ctx := context.Background()

	f.payments.err = errors.New("gateway down")
	err := f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateCancelled)
	require.Error(t, err)
	assert.Equal(t, domain.StateCreated, order.State)
	assert.False(t, order.Payment.RefundFlagged)

	// Inventory was already released, but release is idempotent, so the
	// retried transition succeeds without double-counting.
	f.payments.err = nil
	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateCancelled))
	assert.Equal(t, domain.StateCancelled, order.State)
	assert.Equal(t, 10, f.ledger.CurrentAvailable(invdomain.ProductKey("A")))
	assert.Equal(t, 0, f.ledger.CurrentReserved(invdomain.ProductKey("A")))
}

// TestLifecycle_ReturnAndRefund walks the return path and checks the refund
// stamps.
func TestLifecycle_ReturnAndRefund(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)
	order.SetPayment(cardPayment(), f.clock.Now())
	order.SetShipping("WA", money("5.00"), false, f.clock.Now())
	ctx := context.Background()

	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateProcessing))
	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateProcessing, domain.StateShipped))
	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateShipped, domain.StateReturned))
	require.NotNil(t, order.Shipping.ReturnInitiatedAt)

	f.clock.Advance(time.Hour)
	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateReturned, domain.StateRefunded))

	require.NotNil(t, order.Payment.RefundedAt)
	assert.Equal(t, f.clock.Now(), *order.Payment.RefundedAt)
	assert.True(t, order.Payment.RefundAmount.Equal(money("60.00")), "amount %s", order.Payment.RefundAmount)
	assert.True(t, order.Payment.RefundFlagged)
	refunded := f.payments.refunds[order.ID.String()]
	assert.True(t, refunded.Equal(money("60.00")))
}

// TestLifecycle_CanBeCancelledWindow verifies the 24h post-shipping window
// through the service clock.
func TestLifecycle_CanBeCancelledWindow(t *testing.T) {
	f := newFixture(t)
	order := checkoutOrder(t, f)
	order.SetPayment(cardPayment(), f.clock.Now())
	ctx := context.Background()

	assert.True(t, f.lifecycle.CanBeCancelled(order))

	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateCreated, domain.StateProcessing))
	require.NoError(t, f.lifecycle.Transition(ctx, order, domain.StateProcessing, domain.StateShipped))
	assert.True(t, f.lifecycle.CanBeCancelled(order))

	f.clock.Advance(25 * time.Hour)
	assert.False(t, f.lifecycle.CanBeCancelled(order))
}
