package identity

import (
	"time"

	"github.com/google/uuid"
)

// Identity carries the shared id and timestamp fields embedded by aggregate
// roots (orders, carts). Plain composition, no dispatch.
type Identity struct {
	// ID is the aggregate's unique identifier.
	ID uuid.UUID `json:"id"`
	// CreatedAt is when the aggregate was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the aggregate was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an Identity with a fresh UUID and both timestamps set to now.
func New(now time.Time) Identity {
	return Identity{
		ID:        uuid.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Touch updates the modification timestamp.
func (i *Identity) Touch(now time.Time) {
	i.UpdatedAt = now
}
