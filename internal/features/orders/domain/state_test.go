package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStates = []State{
	StateCreated, StateProcessing, StateOnHold, StateShipped, StateDelivered,
	StateCompleted, StateCancelled, StateReturned, StateRefunded,
}

// allowedPairs mirrors the lifecycle table for the closure test.
var allowedPairs = map[State][]State{
	StateCreated:    {StateProcessing, StateCancelled},
	StateProcessing: {StateShipped, StateCancelled, StateOnHold},
	StateOnHold:     {StateProcessing, StateCancelled},
	StateShipped:    {StateDelivered, StateReturned},
	StateDelivered:  {StateCompleted, StateReturned},
	StateCompleted:  {StateReturned},
	StateReturned:   {StateRefunded},
}

// TestState_TransitionTableClosure verifies every (from, to) pair is allowed
// exactly when the table lists it.
func TestState_TransitionTableClosure(t *testing.T) {
	for _, from := range allStates {
		allowed := make(map[State]bool)
		for _, to := range allowedPairs[from] {
			allowed[to] = true
		}
		for _, to := range allStates {
			assert.Equal(t, allowed[to], from.CanTransitionTo(to),
				"%s -> %s", from, to)
		}
	}
}

// TestState_Terminal verifies CANCELLED and REFUNDED have no successors.
func TestState_Terminal(t *testing.T) {
	assert.True(t, StateCancelled.Terminal())
	assert.True(t, StateRefunded.Terminal())

	for _, s := range allStates {
		if s == StateCancelled || s == StateRefunded {
			continue
		}
		assert.False(t, s.Terminal(), "state %s", s)
	}
}

// TestState_Modifiable verifies only pre-shipment states allow line changes.
func TestState_Modifiable(t *testing.T) {
	assert.True(t, StateCreated.Modifiable())
	assert.True(t, StateProcessing.Modifiable())
	assert.True(t, StateOnHold.Modifiable())

	assert.False(t, StateShipped.Modifiable())
	assert.False(t, StateDelivered.Modifiable())
	assert.False(t, StateCompleted.Modifiable())
	assert.False(t, StateCancelled.Modifiable())
	assert.False(t, StateReturned.Modifiable())
	assert.False(t, StateRefunded.Modifiable())
}

// TestTransitionError verifies the error carries the attempted pair and
// matches the sentinel.
func TestTransitionError(t *testing.T) {
	err := &TransitionError{From: StateShipped, To: StateCancelled}
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Contains(t, err.Error(), "SHIPPED")
	assert.Contains(t, err.Error(), "CANCELLED")
}

// TestConflictError verifies the optimistic-check error matches the sentinel.
func TestConflictError(t *testing.T) {
	err := &ConflictError{Expected: StateCreated, Actual: StateProcessing}
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.Contains(t, err.Error(), "PROCESSING")
}
