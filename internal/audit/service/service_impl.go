package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/partnerledger/core/internal/audit/domain"
	"github.com/partnerledger/core/internal/audit/masking"
	"github.com/partnerledger/core/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  auditdomain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

// AuditLog never surfaces an error to the caller; failures are logged at
// warn and nothing else happens.
func (s *Service) AuditLog(ctx context.Context, actor, action, entityType, entityID string, ip, userAgent *string, metadata map[string]any) {
	action = strings.TrimSpace(action)
	entityType = strings.TrimSpace(entityType)
	if action == "" || entityType == "" {
		s.log.Warn("audit log dropped: missing action or entity type")
		return
	}

	entry := &auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		Actor:      strings.TrimSpace(actor),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		IP:         ip,
		UserAgent:  userAgent,
		Metadata:   masking.MaskJSON(metadata),
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.repo.Insert(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	entityType := strings.TrimSpace(req.EntityType)
	entityID := strings.TrimSpace(req.EntityID)
	if entityType == "" || entityID == "" {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidAction
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	var cursor *pagination.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	items, err := s.repo.List(ctx, auditdomain.ListFilter{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     req.Action,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		Cursor:     cursor,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	ptrs := make([]*auditdomain.AuditLog, 0, len(items))
	for i := range items {
		ptrs = append(ptrs, &items[i])
	}

	pageInfo := pagination.BuildCursorPageInfo(ptrs, int32(pageSize), func(item *auditdomain.AuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	if len(items) > pageSize {
		items = items[:pageSize]
	}

	resp := auditdomain.ListAuditLogResponse{AuditLogs: items}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
