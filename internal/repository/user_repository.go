package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/lostfound/backend/internal/models"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "username = ?", username)
}

// GetUserByID returns nil, nil when no user matches.
func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *UserRepository) first(ctx context.Context, query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where(query, args...).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// GetAllUsers returns every account, newest first.
func (r *UserRepository) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	var users []*models.User
	err := r.db.WithContext(ctx).Order("created_at DESC").Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// GetUsersByRoles lists accounts holding any of the given roles.
func (r *UserRepository) GetUsersByRoles(ctx context.Context, roles ...models.Role) ([]*models.User, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}

	var users []*models.User
	err := r.db.WithContext(ctx).
		Where("role IN ?", names).
		Order("created_at ASC").
		Find(&users).Error
	return users, err
}

// UpdateUser persists the given columns of user.
func (r *UserRepository) UpdateUser(ctx context.Context, user *models.User, columns ...string) error {
	return r.db.WithContext(ctx).Model(user).Select(columns).Updates(user).Error
}
