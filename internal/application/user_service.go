package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/fitpulse/service-billing/internal/domain/user"
	"github.com/fitpulse/service-billing/internal/platform/domain"
)

// fallbackSearchWindow bounds how many users are fetched for client-side
// filtering when the store cannot search.
const fallbackSearchWindow = 1000

// UserListState is the listing state a client sends back on each request.
type UserListState struct {
	Search    string
	Sort      string
	Ascending bool
	Cursor    string
	Limit     int
}

// UserDTO is the API response DTO for a user.
type UserDTO struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	IsPremium bool      `json:"is_premium"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPage is one page of a user listing.
type UserPage struct {
	Items      []UserDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
	Limit      int       `json:"limit"`
}

// UserService lists app users for the admin screens.
type UserService struct {
	repo   user.Repository
	logger *zap.Logger
}

// NewUserService creates a new UserService.
func NewUserService(repo user.Repository, logger *zap.Logger) *UserService {
	return &UserService{repo: repo, logger: logger}
}

// ListUsers returns one page of users, optionally filtered by name or email.
func (s *UserService) ListUsers(ctx context.Context, state UserListState) (*UserPage, error) {
	q := user.Query{
		Search:    strings.TrimSpace(state.Search),
		Sort:      user.SortByCreatedAt,
		Ascending: state.Ascending,
		Limit:     clampLimit(state.Limit),
	}
	switch user.SortField(state.Sort) {
	case "", user.SortByCreatedAt:
	case user.SortByName:
		q.Sort = user.SortByName
	default:
		return nil, domain.NewValidationError("unknown sort field: " + state.Sort)
	}

	offset, err := decodeOffsetCursor(state.Cursor)
	if err != nil {
		return nil, err
	}
	q.Offset = offset

	var (
		users []user.User
		more  bool
	)
	if q.Search == "" {
		users, more, err = s.repo.List(ctx, q)
	} else {
		users, more, err = s.repo.Search(ctx, q)
		if domain.Is(err, domain.ErrUnsupported) {
			s.logger.Debug("store cannot search users, filtering client side")
			users, more, err = s.searchLocally(ctx, q)
		}
	}
	if err != nil {
		return nil, err
	}

	page := &UserPage{
		Items: lo.Map(users, func(u user.User, _ int) UserDTO { return toUserDTO(u) }),
		Limit: q.Limit,
	}
	if more {
		page.NextCursor = encodeOffsetCursor(q.Offset + len(users))
	}
	return page, nil
}

// searchLocally fetches a bounded window in the requested order and filters it.
func (s *UserService) searchLocally(ctx context.Context, q user.Query) ([]user.User, bool, error) {
	window := q
	window.Search = ""
	window.Offset = 0
	window.Limit = fallbackSearchWindow

	candidates, truncated, err := s.repo.List(ctx, window)
	if err != nil {
		return nil, false, err
	}
	if truncated {
		s.logger.Warn("client-side user search truncated",
			zap.Int("window", fallbackSearchWindow),
			zap.String("search", q.Search),
		)
	}

	needle := strings.ToLower(q.Search)
	matched := lo.Filter(candidates, func(u user.User, _ int) bool {
		return strings.Contains(strings.ToLower(u.Name), needle) ||
			strings.Contains(strings.ToLower(u.Email), needle)
	})

	if q.Offset >= len(matched) {
		return []user.User{}, false, nil
	}
	end := min(q.Offset+q.Limit, len(matched))
	return matched[q.Offset:end], end < len(matched), nil
}

func toUserDTO(u user.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		IsPremium: u.IsPremium,
		CreatedAt: u.CreatedAt,
	}
}
