package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	campaigndomain "github.com/partnerledger/core/internal/campaign/domain"
	obsmetrics "github.com/partnerledger/core/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Repo       campaigndomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	repo       campaigndomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) campaigndomain.Service {
	return &Service{
		log:        p.Log.Named("campaign.service"),
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// ClaimSlot must run inside the same transaction that creates the Order
// row: the caller supplies tx. The global cap is strict
// (claimed atomically); the per-partner cap is advisory, checked by a
// separate count after the claim succeeds.
func (s *Service) ClaimSlot(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID, mediatorCode *string) error {
	rowsAffected, err := s.repo.ClaimSlot(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		s.record(ctx, "sold_out")
		return campaigndomain.ErrSoldOut
	}

	code := ""
	if mediatorCode != nil {
		code = strings.TrimSpace(*mediatorCode)
	}
	if code == "" {
		s.record(ctx, "claimed")
		return nil
	}

	assignments, err := s.repo.GetAssignments(ctx, campaignID)
	if err != nil {
		s.log.Warn("failed to load campaign assignments for partner cap check", zap.Error(err))
		s.record(ctx, "claimed")
		return nil
	}
	assignment, ok := assignments[code]
	if !ok || assignment.Limit <= 0 {
		s.record(ctx, "claimed")
		return nil
	}

	count, err := s.repo.CountActiveOrdersForPartner(ctx, campaignID, code)
	if err != nil {
		s.log.Warn("failed to count partner orders for cap check", zap.Error(err))
		s.record(ctx, "claimed")
		return nil
	}
	if count >= int64(assignment.Limit) {
		s.record(ctx, "sold_out_for_partner")
		return campaigndomain.ErrSoldOutForPartner
	}

	s.record(ctx, "claimed")
	return nil
}

// GetAssignment looks up one partner's slot assignment, used by settlement
// to resolve a commission/payout override when no Deal row exists.
func (s *Service) GetAssignment(ctx context.Context, campaignID snowflake.ID, mediatorCode string) (*campaigndomain.Assignment, error) {
	code := strings.TrimSpace(mediatorCode)
	if code == "" {
		return nil, nil
	}
	assignments, err := s.repo.GetAssignments(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	assignment, ok := assignments[code]
	if !ok {
		return nil, nil
	}
	return &assignment, nil
}

func (s *Service) record(ctx context.Context, result string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordCampaignSlotClaim(ctx, result)
	}
}
