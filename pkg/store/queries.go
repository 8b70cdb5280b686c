package store

import (
	"context"

	"github.com/termgate/termgate/pkg/models"
)

// CreateQuery persists an assistant exchange and returns its generated ID.
func (s *GORMStore) CreateQuery(ctx context.Context, query *models.AssistantQuery) (string, error) {
	return createWithID(s.db, ctx, query,
		func(q *models.AssistantQuery, id string) { q.ID = id },
		query.ID, models.ErrAssistant)
}

// ListQueries returns the user's most recent assistant exchanges, newest
// first, capped at limit (50 when limit is not positive).
func (s *GORMStore) ListQueries(ctx context.Context, userID string, limit int) ([]*models.AssistantQuery, error) {
	if limit <= 0 {
		limit = 50
	}
	var queries []*models.AssistantQuery
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&queries).Error
	if err != nil {
		return nil, err
	}
	return queries, nil
}
