package domain

import (
	"errors"
	"fmt"
)

// State is one stop in the order lifecycle.
type State string

const (
	// StateCreated is the initial state of every order.
	StateCreated State = "CREATED"
	// StateProcessing means payment was validated and fulfillment started.
	StateProcessing State = "PROCESSING"
	// StateOnHold pauses processing without cancelling.
	StateOnHold State = "ON_HOLD"
	// StateShipped means the order left the warehouse.
	StateShipped State = "SHIPPED"
	// StateDelivered means the carrier confirmed delivery.
	StateDelivered State = "DELIVERED"
	// StateCompleted closes a delivered order.
	StateCompleted State = "COMPLETED"
	// StateCancelled is terminal; reserved stock is released on entry.
	StateCancelled State = "CANCELLED"
	// StateReturned means the customer initiated a return.
	StateReturned State = "RETURNED"
	// StateRefunded is terminal; the refund amount is stamped on entry.
	StateRefunded State = "REFUNDED"
)

var (
	// ErrInvalidTransition is the base error for disallowed state changes.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateConflict is the base error for optimistic-state mismatches; the
	// caller should re-read the order and retry.
	ErrStateConflict = errors.New("order state changed since last read")
)

// transitions is the canonical lifecycle table. CANCELLED and REFUNDED are
// terminal; a refund after cancellation is handed to the payment collaborator
// during the cancel side effects rather than modeled as a transition.
var transitions = map[State][]State{
	StateCreated:    {StateProcessing, StateCancelled},
	StateProcessing: {StateShipped, StateCancelled, StateOnHold},
	StateOnHold:     {StateProcessing, StateCancelled},
	StateShipped:    {StateDelivered, StateReturned},
	StateDelivered:  {StateCompleted, StateReturned},
	StateCompleted:  {StateReturned},
	StateReturned:   {StateRefunded},
	StateRefunded:   {},
	StateCancelled:  {},
}

// CanTransitionTo reports whether the lifecycle table allows moving to next.
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the state has no successors.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Modifiable reports whether order lines may still change in this state.
func (s State) Modifiable() bool {
	switch s {
	case StateCreated, StateProcessing, StateOnHold:
		return true
	}
	return false
}

// Known reports whether the state appears in the lifecycle table.
func (s State) Known() bool {
	_, ok := transitions[s]
	return ok
}

// TransitionError reports a state change the lifecycle table forbids.
type TransitionError struct {
	From State
	To   State
}

// Error implements error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition %s -> %s", e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ConflictError reports an optimistic-state mismatch: the order moved on
// since the caller last read it.
type ConflictError struct {
	Expected State
	Actual   State
}

// Error implements error.
func (e *ConflictError) Error() string {
	return fmt.Sprintf("order is %s, expected %s", e.Actual, e.Expected)
}

// Unwrap lets errors.Is match ErrStateConflict.
func (e *ConflictError) Unwrap() error {
	return ErrStateConflict
}
