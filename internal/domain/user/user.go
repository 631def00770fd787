package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is a read model of an app account. Accounts are created by the
// identity provider; this service only lists them.
type User struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Role      string
	IsPremium bool
	CreatedAt time.Time
}

// SortField selects the listing order.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByName      SortField = "name"
)

// Query narrows a user listing.
type Query struct {
	Search    string
	Sort      SortField
	Ascending bool
	Offset    int
	Limit     int
}

// Repository lists users from the store.
type Repository interface {
	// List returns users in the requested order without text filtering.
	List(ctx context.Context, q Query) ([]User, bool, error)

	// Search filters by name or email in the store. Returns an error marked
	// domain.ErrUnsupported when the store cannot search.
	Search(ctx context.Context, q Query) ([]User, bool, error)
}
