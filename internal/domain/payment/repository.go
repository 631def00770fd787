package payment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows a payment listing. Zero values mean "no filter".
type ListFilter struct {
	Status Status
	Type   Type
	UserID uuid.UUID
	// Ascending orders by creation time oldest first; default is newest first.
	Ascending bool
	// After is the last item of the previous page; nil starts from the beginning.
	After *Cursor
	Limit int
}

// Cursor identifies a position in a creation-ordered listing.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// PaymentRepository defines the persistence contract for Payment aggregates.
type PaymentRepository interface {
	// FindByID retrieves a payment by its unique ID.
	FindByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// FindByGatewayRef retrieves a payment by the gateway's charge reference.
	FindByGatewayRef(ctx context.Context, ref string) (*Payment, error)

	// HasCompletedSubscription reports whether the user already paid for the plan.
	HasCompletedSubscription(ctx context.Context, userID uuid.UUID, plan string) (bool, error)

	// List returns up to filter.Limit payments after the cursor, plus whether more exist.
	List(ctx context.Context, filter ListFilter) ([]*Payment, bool, error)

	// Save persists a new payment aggregate.
	Save(ctx context.Context, payment *Payment) error

	// Update persists changes to an existing payment aggregate with optimistic locking.
	Update(ctx context.Context, payment *Payment) error
}
