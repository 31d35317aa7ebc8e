package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/pkg/db/pagination"
)

// AuditLog is the domain-facing view of store.AuditLog.
type AuditLog struct {
	ID         snowflake.ID
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	IP         *string
	UserAgent  *string
	Metadata   map[string]any
	CreatedAt  time.Time
}

type ListFilter struct {
	EntityType string
	EntityID   string
	Action     string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *pagination.Cursor
	Limit      int
}

type ListAuditLogRequest struct {
	pagination.Pagination
	EntityType string
	EntityID   string
	Action     string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

// Repository persists and queries audit log rows.
type Repository interface {
	Insert(ctx context.Context, entry *AuditLog) error
	List(ctx context.Context, filter ListFilter) ([]AuditLog, error)
}

// Service is the audit log writer/reader used across every other component.
// AuditLog is fire-and-forget: it never returns an error that a caller is
// expected to propagate to its own caller.
type Service interface {
	AuditLog(ctx context.Context, actor, action, entityType, entityID string, ip, userAgent *string, metadata map[string]any)
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
