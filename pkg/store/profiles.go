package store

import (
	"context"
	"fmt"
	"time"

	"github.com/termgate/termgate/pkg/models"
)

// ProfileUpdate carries a partial profile update. Nil fields are left
// untouched; Credentials, when present, replaces the stored ciphertext.
type ProfileUpdate struct {
	Name                 *string
	Host                 *string
	Port                 *int
	Username             *string
	AuthMethod           *models.AuthMethod
	EncryptedCredentials *string
}

// CreateProfile persists a new profile for the given user. Names must be
// unique among that user's active profiles.
func (s *GORMStore) CreateProfile(ctx context.Context, profile *models.SSHProfile) (string, error) {
	if err := profile.Validate(); err != nil {
		return "", fmt.Errorf("%w: %s", models.ErrValidation, err)
	}
	profile.Active = true

	taken, err := s.profileNameTaken(ctx, profile.UserID, profile.Name, "")
	if err != nil {
		return "", err
	}
	if taken {
		return "", models.ErrProfileNameConflict
	}

	return createWithID(s.db, ctx, profile,
		func(p *models.SSHProfile, id string) { p.ID = id },
		profile.ID, models.ErrProfileNameConflict)
}

// GetProfile retrieves an active profile owned by the given user. Profiles of
// other users and soft-deleted profiles are reported as not found.
func (s *GORMStore) GetProfile(ctx context.Context, userID, profileID string) (*models.SSHProfile, error) {
	var profile models.SSHProfile
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ? AND active = ?", profileID, userID, true).
		First(&profile).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrProfileNotFound)
	}
	return &profile, nil
}

// ListProfiles returns the user's active profiles, most recently used first,
// then newest first.
func (s *GORMStore) ListProfiles(ctx context.Context, userID string) ([]*models.SSHProfile, error) {
	var profiles []*models.SSHProfile
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("last_used DESC NULLS LAST").
		Order("created_at DESC").
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

// UpdateProfile applies a partial update to an active profile.
func (s *GORMStore) UpdateProfile(ctx context.Context, userID, profileID string, update *ProfileUpdate) (*models.SSHProfile, error) {
	profile, err := s.GetProfile(ctx, userID, profileID)
	if err != nil {
		return nil, err
	}

	if update.Name != nil && *update.Name != profile.Name {
		taken, err := s.profileNameTaken(ctx, userID, *update.Name, profileID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, models.ErrProfileNameConflict
		}
		profile.Name = *update.Name
	}
	if update.Host != nil {
		profile.Host = *update.Host
	}
	if update.Port != nil {
		profile.Port = *update.Port
	}
	if update.Username != nil {
		profile.Username = *update.Username
	}
	if update.AuthMethod != nil {
		profile.AuthMethod = *update.AuthMethod
	}
	if update.EncryptedCredentials != nil {
		profile.EncryptedCredentials = *update.EncryptedCredentials
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err)
	}
	if err := s.db.WithContext(ctx).Save(profile).Error; err != nil {
		return nil, err
	}
	return profile, nil
}

// DeleteProfile soft-deletes a profile by clearing its active flag. Session
// history referencing the profile stays intact.
func (s *GORMStore) DeleteProfile(ctx context.Context, userID, profileID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.SSHProfile{}).
		Where("id = ? AND user_id = ? AND active = ?", profileID, userID, true).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

// TouchProfile records that the profile was just used for a connection.
func (s *GORMStore) TouchProfile(ctx context.Context, userID, profileID string) error {
	now := time.Now().UTC()
	result := s.db.WithContext(ctx).
		Model(&models.SSHProfile{}).
		Where("id = ? AND user_id = ? AND active = ?", profileID, userID, true).
		Update("last_used", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrProfileNotFound
	}
	return nil
}

func (s *GORMStore) profileNameTaken(ctx context.Context, userID, name, excludeID string) (bool, error) {
	var count int64
	q := s.db.WithContext(ctx).
		Model(&models.SSHProfile{}).
		Where("user_id = ? AND name = ? AND active = ?", userID, name, true)
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
