package store

import (
	"context"
	"fmt"
	"time"

	"github.com/termgate/termgate/pkg/models"
)

// UpsertSession creates or refreshes a terminal session record. Session IDs
// are client-chosen, so a reconnect under the same ID updates in place.
func (s *GORMStore) UpsertSession(ctx context.Context, session *models.TerminalSession) error {
	if err := session.Validate(); err != nil {
		return fmt.Errorf("invalid session: %w", err)
	}
	if session.LastActivity.IsZero() {
		session.LastActivity = time.Now().UTC()
	}

	var existing models.TerminalSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", session.ID, session.UserID).
		First(&existing).Error
	if err == nil {
		existing.ProfileID = session.ProfileID
		existing.Status = session.Status
		existing.LastActivity = session.LastActivity
		if session.Title != "" {
			existing.Title = session.Title
		}
		return s.db.WithContext(ctx).Save(&existing).Error
	}
	return s.db.WithContext(ctx).Create(session).Error
}

// GetSession retrieves a session owned by the given user.
func (s *GORMStore) GetSession(ctx context.Context, userID, sessionID string) (*models.TerminalSession, error) {
	var session models.TerminalSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		First(&session).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrSessionNotFound)
	}
	return &session, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *GORMStore) ListSessions(ctx context.Context, userID string) ([]*models.TerminalSession, error) {
	var sessions []*models.TerminalSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("last_activity DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// UpdateSessionStatus moves a session to a new lifecycle state and bumps its
// activity timestamp.
func (s *GORMStore) UpdateSessionStatus(ctx context.Context, userID, sessionID string, status models.ConnectionStatus) error {
	if !status.Valid() {
		return fmt.Errorf("unknown session status %q", status)
	}
	result := s.db.WithContext(ctx).
		Model(&models.TerminalSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Updates(map[string]any{
			"status":        status,
			"last_activity": time.Now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// TouchSession bumps a session's activity timestamp.
func (s *GORMStore) TouchSession(ctx context.Context, userID, sessionID string) error {
	result := s.db.WithContext(ctx).
		Model(&models.TerminalSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Update("last_activity", time.Now().UTC())
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}

// RenameSession sets a user-facing title on a session.
func (s *GORMStore) RenameSession(ctx context.Context, userID, sessionID, title string) error {
	result := s.db.WithContext(ctx).
		Model(&models.TerminalSession{}).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrSessionNotFound
	}
	return nil
}
