package store

import (
	"context"
	"fmt"
	"time"

	"github.com/termgate/termgate/pkg/models"
)

// CreateUser persists a new user and returns its generated ID.
func (s *GORMStore) CreateUser(ctx context.Context, user *models.User) (string, error) {
	if err := user.Validate(); err != nil {
		return "", fmt.Errorf("invalid user: %w", err)
	}
	user.Email = models.NormalizeEmail(user.Email)
	return createWithID(s.db, ctx, user,
		func(u *models.User, id string) { u.ID = id },
		user.ID, models.ErrDuplicateUser)
}

// GetUser retrieves a user by ID.
func (s *GORMStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "id", id, models.ErrUserNotFound)
}

// GetUserByEmail retrieves a user by email (case-insensitive).
func (s *GORMStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return getByField[models.User](s.db, ctx, "email", models.NormalizeEmail(email), models.ErrUserNotFound)
}

// UpdateLastLogin records a successful login timestamp.
func (s *GORMStore) UpdateLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// UpdatePreferences replaces the user's preferences blob.
func (s *GORMStore) UpdatePreferences(ctx context.Context, id string, prefs models.JSONMap) (*models.User, error) {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("preferences", prefs)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, models.ErrUserNotFound
	}
	return s.GetUser(ctx, id)
}
