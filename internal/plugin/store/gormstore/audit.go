package gormstore

import (
	"context"
	"strconv"

	"github.com/helixmapr/helixmapr/internal/model"
	registrystore "github.com/helixmapr/helixmapr/internal/registry/store"
)

// ListAuditLogs pages a database's audit trail, newest first. Reading the
// trail is an admin operation since entries expose who did what.
func (s *GormStore) ListAuditLogs(ctx context.Context, userID string, databaseID uint, query registrystore.AuditQuery) ([]model.AuditLog, *string, error) {
	tx := s.db.WithContext(ctx)
	if _, _, _, err := s.requireDatabaseRole(ctx, tx, userID, databaseID, model.RoleAdmin); err != nil {
		return nil, nil, err
	}

	limit := query.Limit
	maxLimit := 100
	if s.cfg != nil && s.cfg.AuditPageLimit > 0 {
		maxLimit = s.cfg.AuditPageLimit
	}
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}

	offset := 0
	if query.AfterCursor != nil && *query.AfterCursor != "" {
		parsed, err := strconv.Atoi(*query.AfterCursor)
		if err != nil || parsed < 0 {
			return nil, nil, &ValidationError{Field: "afterCursor", Message: "invalid cursor"}
		}
		offset = parsed
	}

	q := tx.Model(&model.AuditLog{}).Where("database_id = ?", databaseID)
	if query.Action != "" {
		q = q.Where("action = ?", query.Action)
	}
	if query.ObjectType != "" {
		q = q.Where("object_type = ?", query.ObjectType)
	}
	if query.UserID != nil {
		q = q.Where("user_id = ?", *query.UserID)
	}

	var entries []model.AuditLog
	if err := q.Order("timestamp DESC, id DESC").Offset(offset).Limit(limit + 1).Find(&entries).Error; err != nil {
		return nil, nil, err
	}

	var afterCursor *string
	if len(entries) > limit {
		entries = entries[:limit]
		cursor := strconv.Itoa(offset + limit)
		afterCursor = &cursor
	}
	return entries, afterCursor, nil
}
