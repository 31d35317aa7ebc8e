package repository

import (
	"context"
	"strings"

	"github.com/partnerledger/core/internal/audit/domain"
	"github.com/partnerledger/core/internal/store"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Insert(ctx context.Context, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	row := store.AuditLog{
		ID:         entry.ID,
		Actor:      entry.Actor,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		Metadata:   datatypes.JSONMap(entry.Metadata),
		CreatedAt:  entry.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *repo) List(ctx context.Context, filter domain.ListFilter) ([]domain.AuditLog, error) {
	var rows []store.AuditLog
	stmt := r.db.WithContext(ctx).Model(&store.AuditLog{}).
		Where("entity_type = ?", filter.EntityType).
		Where("entity_id = ?", filter.EntityID)

	if action := strings.TrimSpace(filter.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AuditLog{
			ID:         row.ID,
			Actor:      row.Actor,
			Action:     row.Action,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			IP:         row.IP,
			UserAgent:  row.UserAgent,
			Metadata:   row.Metadata,
			CreatedAt:  row.CreatedAt,
		})
	}
	return out, nil
}
