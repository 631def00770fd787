package repository

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fitpulse/service-billing/internal/domain/user"
	"github.com/fitpulse/service-billing/internal/platform/domain"
)

// UserModel is the GORM model for the users table.
type UserModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"type:varchar(120);not null;index"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	Role      string    `gorm:"type:varchar(20);not null;default:'member'"`
	IsPremium bool      `gorm:"not null;default:false"`
	CreatedAt time.Time `gorm:"type:timestamptz;not null;index"`
}

// TableName sets the table name.
func (UserModel) TableName() string { return "users" }

// GormUserRepository implements user.Repository using GORM.
type GormUserRepository struct {
	db           *gorm.DB
	serverSearch bool
}

// NewGormUserRepository creates a new GormUserRepository. With serverSearch
// off, Search reports ErrUnsupported and callers filter client side.
func NewGormUserRepository(db *gorm.DB, serverSearch bool) *GormUserRepository {
	return &GormUserRepository{db: db, serverSearch: serverSearch}
}

// List returns one page of users.
func (r *GormUserRepository) List(ctx context.Context, q user.Query) ([]user.User, bool, error) {
	return r.find(r.db.WithContext(ctx).Model(&UserModel{}), q)
}

// Search filters by name or email with ILIKE.
func (r *GormUserRepository) Search(ctx context.Context, q user.Query) ([]user.User, bool, error) {
	if !r.serverSearch {
		return nil, false, domain.Unsupported("server-side user search disabled")
	}
	pattern := "%" + escapeLike(strings.TrimSpace(q.Search)) + "%"
	tx := r.db.WithContext(ctx).Model(&UserModel{}).
		Where("name ILIKE ? OR email ILIKE ?", pattern, pattern)
	return r.find(tx, q)
}

func (r *GormUserRepository) find(tx *gorm.DB, q user.Query) ([]user.User, bool, error) {
	dir := " DESC"
	if q.Ascending {
		dir = " ASC"
	}
	col := "created_at"
	if q.Sort == user.SortByName {
		col = "name"
	}

	var models []UserModel
	if err := tx.Order(col + dir).Order("id" + dir).
		Offset(q.Offset).
		Limit(q.Limit + 1).
		Find(&models).Error; err != nil {
		return nil, false, err
	}

	hasMore := len(models) > q.Limit
	if hasMore {
		models = models[:q.Limit]
	}

	users := make([]user.User, len(models))
	for i, m := range models {
		users[i] = user.User{
			ID:        m.ID,
			Name:      m.Name,
			Email:     m.Email,
			Role:      m.Role,
			IsPremium: m.IsPremium,
			CreatedAt: m.CreatedAt,
		}
	}
	return users, hasMore, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
