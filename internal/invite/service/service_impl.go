package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/partnerledger/core/internal/audit/domain"
	invitedomain "github.com/partnerledger/core/internal/invite/domain"
	obsmetrics "github.com/partnerledger/core/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Repo       invitedomain.Repository
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	repo       invitedomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) invitedomain.Service {
	return &Service{
		log:        p.Log.Named("invite.service"),
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) ConsumeInvite(ctx context.Context, input invitedomain.ConsumeInput) (*invitedomain.Invite, error) {
	code := strings.TrimSpace(input.Code)
	if code == "" {
		return nil, s.fail(ctx, invitedomain.ErrInvalidInvite)
	}

	invite, err := s.repo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if invite == nil {
		return nil, s.fail(ctx, invitedomain.ErrInvalidInvite)
	}
	if invite.Role != input.Role {
		return nil, s.fail(ctx, invitedomain.ErrInviteRoleMismatch)
	}
	if invite.Status != invitedomain.StatusActive {
		return nil, s.fail(ctx, invitedomain.ErrInvalidInvite)
	}

	now := time.Now().UTC()
	if invite.ExpiresAt != nil && !invite.ExpiresAt.After(now) {
		if err := s.repo.ExpireIfPast(ctx, invite.ID, now); err != nil {
			s.log.Warn("failed to persist invite expiry", zap.Error(err))
		}
		return nil, s.fail(ctx, invitedomain.ErrInviteExpired)
	}
	if invite.UseCount >= invite.MaxUses {
		return nil, s.fail(ctx, invitedomain.ErrInvalidInvite)
	}

	if input.RequireActiveIssuer {
		issuerActive, err := s.repo.IsUserActive(ctx, invite.CreatedBy)
		if err != nil {
			return nil, err
		}
		if !issuerActive {
			return nil, s.fail(ctx, invitedomain.ErrInviteParentNotActive)
		}
		if err := s.assertLineageLive(ctx, invite.Role, invite.ParentCode); err != nil {
			return nil, s.fail(ctx, err)
		}
	}

	rowsAffected, err := s.repo.ConsumeAtomic(ctx, invite.ID, now, input.UsedByUserID)
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, s.fail(ctx, invitedomain.ErrInvalidInvite)
	}

	if err := s.repo.AppendUse(ctx, invite.ID, input.UsedByUserID, now); err != nil {
		s.log.Warn("failed to append invite use log", zap.Error(err))
	}

	invite.UseCount++
	if invite.UseCount >= invite.MaxUses {
		invite.Status = invitedomain.StatusUsed
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordInviteConsumption(ctx, string(invite.Role), "consumed")
	}
	if s.auditSvc != nil {
		s.auditSvc.AuditLog(ctx, input.UsedByUserID.String(), "invite.consumed", "invite", invite.ID.String(), nil, nil, map[string]any{
			"code": invite.Code,
			"role": string(invite.Role),
		})
	}

	return invite, nil
}

// assertLineageLive walks the partner chain: a mediator invite's parentCode
// must name an active agency; a shopper invite's parentCode must name an
// active mediator whose own parentCode in turn names an active agency.
func (s *Service) assertLineageLive(ctx context.Context, role invitedomain.Role, parentCode *string) error {
	if parentCode == nil || strings.TrimSpace(*parentCode) == "" {
		return invitedomain.ErrInviteParentNotActive
	}

	parentRole := invitedomain.RoleMediator
	if role == invitedomain.RoleMediator {
		parentRole = invitedomain.RoleAgency
	}

	parentUserID, grandparentCode, err := s.repo.FindActiveUserByCode(ctx, parentRole, *parentCode)
	if err != nil {
		return err
	}
	if parentUserID == nil {
		return invitedomain.ErrInviteParentNotActive
	}

	if role == invitedomain.RoleMediator {
		return nil
	}
	if grandparentCode == nil || strings.TrimSpace(*grandparentCode) == "" {
		return invitedomain.ErrInviteUpstreamNotActive
	}
	agencyID, _, err := s.repo.FindActiveUserByCode(ctx, invitedomain.RoleAgency, *grandparentCode)
	if err != nil {
		return err
	}
	if agencyID == nil {
		return invitedomain.ErrInviteUpstreamNotActive
	}
	return nil
}

func (s *Service) RevokeInvite(ctx context.Context, id snowflake.ID) error {
	rowsAffected, err := s.repo.Revoke(ctx, id)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return invitedomain.ErrInviteNotActive
	}
	if s.auditSvc != nil {
		s.auditSvc.AuditLog(ctx, "system", "invite.revoked", "invite", id.String(), nil, nil, nil)
	}
	return nil
}

func (s *Service) fail(ctx context.Context, err error) error {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordInviteConsumption(ctx, "", err.Error())
	}
	return err
}
