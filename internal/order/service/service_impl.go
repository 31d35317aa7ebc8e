package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/partnerledger/core/internal/audit/domain"
	obsmetrics "github.com/partnerledger/core/internal/observability/metrics"
	orderdomain "github.com/partnerledger/core/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Repo       orderdomain.Repository
	AuditSvc   auditdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	repo       orderdomain.Repository
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) orderdomain.Service {
	return &Service{
		log:        p.Log.Named("order.service"),
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// transitions is the legal edge set of the order workflow graph from
// the order workflow graph. FAILED is reachable from any non-terminal state and is
// handled separately rather than listed per-source.
var transitions = map[orderdomain.WorkflowStatus][]orderdomain.WorkflowStatus{
	orderdomain.WorkflowCreated:        {orderdomain.WorkflowRedirected, orderdomain.WorkflowOrdered},
	orderdomain.WorkflowRedirected:     {orderdomain.WorkflowOrdered},
	orderdomain.WorkflowOrdered:        {orderdomain.WorkflowProofSubmitted},
	orderdomain.WorkflowProofSubmitted: {orderdomain.WorkflowUnderReview},
	orderdomain.WorkflowUnderReview:    {orderdomain.WorkflowApproved, orderdomain.WorkflowRejected},
	orderdomain.WorkflowApproved:       {orderdomain.WorkflowRewardPending},
	orderdomain.WorkflowRewardPending:  {orderdomain.WorkflowCompleted},
}

func isTransitionAllowed(from, to orderdomain.WorkflowStatus) bool {
	if to == orderdomain.WorkflowFailed {
		return !from.Terminal()
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func (s *Service) CreateOrder(ctx context.Context, input orderdomain.CreateInput) (*orderdomain.Order, error) {
	if input.ExternalOrderID != nil && strings.TrimSpace(*input.ExternalOrderID) != "" {
		existing, err := s.repo.FindActiveOrderByExternalID(ctx, *input.ExternalOrderID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			s.record(ctx, "duplicate_external_id")
			return nil, orderdomain.ErrDuplicateExternalID
		}
	}

	if input.PreOrderID == nil {
		for _, item := range input.Items {
			dup, err := s.repo.FindNonTerminalOrderForBuyerProduct(ctx, input.UserID, item.ProductID)
			if err != nil {
				return nil, err
			}
			if dup != nil {
				s.record(ctx, "duplicate_deal_order")
				return nil, orderdomain.ErrDuplicateDealOrder
			}
		}
	}

	now := time.Now().UTC()
	hourly, err := s.repo.CountOrdersSince(ctx, input.UserID, now.Add(-time.Hour))
	if err != nil {
		return nil, err
	}
	if hourly >= orderdomain.VelocityHourlyLimit {
		s.record(ctx, "velocity_limit")
		return nil, orderdomain.ErrVelocityLimit
	}
	daily, err := s.repo.CountOrdersSince(ctx, input.UserID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	if daily >= orderdomain.VelocityDailyLimit {
		s.record(ctx, "velocity_limit")
		return nil, orderdomain.ErrVelocityLimit
	}

	var result *orderdomain.Order

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if input.ClaimSlot != nil {
			if err := input.ClaimSlot(ctx, tx); err != nil {
				return err
			}
		}

		if input.PreOrderID != nil {
			rowsAffected, err := s.repo.TransitionWorkflow(ctx, tx, *input.PreOrderID, orderdomain.WorkflowRedirected, orderdomain.WorkflowOrdered, orderdomain.Event{
				Type: "ORDERED", At: now, ActorUserID: input.ActorUserID,
			})
			if err != nil {
				return err
			}
			if rowsAffected == 0 {
				return s.classifyStaleTransition(ctx, tx, *input.PreOrderID, orderdomain.WorkflowRedirected)
			}
			result, err = s.repo.FindOrder(ctx, tx, *input.PreOrderID)
			return err
		}

		status := orderdomain.WorkflowCreated
		eventType := "CREATED"
		if input.Direct {
			status = orderdomain.WorkflowOrdered
			eventType = "ORDERED"
		}

		total := input.TotalPaise
		if total == 0 {
			for _, item := range input.Items {
				qty := item.Quantity
				if qty <= 0 {
					qty = 1
				}
				total += item.PriceAtPurchasePaise * int64(qty)
			}
		}

		order := &orderdomain.Order{
			UserID:          input.UserID,
			BrandUserID:     input.BrandUserID,
			TotalPaise:      total,
			WorkflowStatus:  status,
			ManagerName:     input.ManagerName,
			AgencyName:      input.AgencyName,
			BuyerName:       input.BuyerName,
			BuyerMobile:     input.BuyerMobile,
			ExternalOrderID: input.ExternalOrderID,
			Items:           input.Items,
			Events: []orderdomain.Event{
				{Type: eventType, At: now, ActorUserID: input.ActorUserID},
			},
		}

		if err := s.repo.InsertOrder(ctx, tx, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, "created")
	s.emitAudit(ctx, input.ActorUserID, "order.created", result.ID)
	return result, nil
}

func (s *Service) TransitionWorkflow(ctx context.Context, input orderdomain.TransitionInput) error {
	if !isTransitionAllowed(input.From, input.To) {
		return orderdomain.ErrInvalidWorkflowState
	}

	run := func(tx *gorm.DB) error {
		rowsAffected, err := s.repo.TransitionWorkflow(ctx, tx, input.OrderID, input.From, input.To, orderdomain.Event{
			Type: string(input.To), At: time.Now().UTC(), ActorUserID: input.ActorUserID, Metadata: input.Metadata,
		})
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return s.classifyStaleTransition(ctx, tx, input.OrderID, input.From)
		}
		return nil
	}

	var err error
	if input.Tx != nil {
		err = run(input.Tx)
	} else {
		err = s.repo.WithTransaction(ctx, run)
	}
	if err != nil {
		return err
	}

	s.recordTransition(ctx, input.From, input.To)
	s.emitAudit(ctx, input.ActorUserID, "order.transition."+string(input.To), input.OrderID)
	return nil
}

// classifyStaleTransition distinguishes a frozen order from a plain stale
// compare-and-set so the caller gets the right failure.
func (s *Service) classifyStaleTransition(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, expectedFrom orderdomain.WorkflowStatus) error {
	current, err := s.repo.FindOrder(ctx, tx, orderID)
	if err != nil {
		return err
	}
	if current == nil {
		return orderdomain.ErrOrderNotFound
	}
	if current.Frozen {
		return orderdomain.ErrOrderFrozen
	}
	return orderdomain.ErrInvalidWorkflowState
}

func (s *Service) Freeze(ctx context.Context, orderID snowflake.ID, reason string, actorUserID *snowflake.ID) error {
	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		rowsAffected, err := s.repo.SetFrozen(ctx, tx, orderID, true, &reason, orderdomain.Event{
			Type: "FROZEN", At: time.Now().UTC(), ActorUserID: actorUserID, Metadata: map[string]any{"reason": reason},
		})
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return orderdomain.ErrOrderFrozen
		}
		s.emitAudit(ctx, actorUserID, "order.frozen", orderID)
		return nil
	})
}

func (s *Service) Reactivate(ctx context.Context, orderID snowflake.ID, actorUserID *snowflake.ID) error {
	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		rowsAffected, err := s.repo.SetFrozen(ctx, tx, orderID, false, nil, orderdomain.Event{
			Type: "REACTIVATED", At: time.Now().UTC(), ActorUserID: actorUserID,
		})
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return orderdomain.ErrInvalidWorkflowState
		}
		s.emitAudit(ctx, actorUserID, "order.reactivated", orderID)
		return nil
	})
}

// SubmitProof applies one AI-scored verification step and drives the
// ORDERED → PROOF_SUBMITTED → UNDER_REVIEW transitions, auto-verifying at
// AIAutoVerifyThreshold and finalizing to APPROVED once every step the
// order's deal composition requires is verified.
func (s *Service) SubmitProof(ctx context.Context, orderID snowflake.ID, proofType orderdomain.ProofType, confidence int, actorUserID *snowflake.ID) error {
	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.FindOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		if order.Frozen {
			return orderdomain.ErrOrderFrozen
		}

		required := order.RequiredProofTypes()
		if !required[proofType] {
			return orderdomain.ErrProofNotRequired
		}

		if err := s.assertProofPrerequisite(order, proofType, required); err != nil {
			return err
		}

		switch order.WorkflowStatus {
		case orderdomain.WorkflowOrdered:
			if _, err := s.repo.TransitionWorkflow(ctx, tx, orderID, orderdomain.WorkflowOrdered, orderdomain.WorkflowProofSubmitted, orderdomain.Event{
				Type: "PROOF_SUBMITTED", At: time.Now().UTC(), ActorUserID: actorUserID, Metadata: map[string]any{"proofType": proofType},
			}); err != nil {
				return err
			}
			if _, err := s.repo.TransitionWorkflow(ctx, tx, orderID, orderdomain.WorkflowProofSubmitted, orderdomain.WorkflowUnderReview, orderdomain.Event{
				Type: "UNDER_REVIEW", At: time.Now().UTC(), ActorUserID: actorUserID,
			}); err != nil {
				return err
			}
		case orderdomain.WorkflowUnderReview:
			// already under review, proof submission just adds a step
		default:
			return orderdomain.ErrInvalidWorkflowState
		}

		step := orderdomain.VerificationStep{Confidence: confidence}
		if confidence >= orderdomain.AIAutoVerifyThreshold {
			now := time.Now().UTC()
			step.VerifiedAt = &now
			step.VerifiedBy = "SYSTEM_AI"
			step.AutoVerified = true
		}
		if err := s.repo.UpdateVerification(ctx, tx, orderID, proofType, step); err != nil {
			return err
		}
		if step.AutoVerified {
			s.emitAudit(ctx, actorUserID, "order.verified."+string(proofType), orderID)
		}

		if step.VerifiedAt == nil {
			return nil
		}

		reloaded, err := s.repo.FindOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if reloaded.WorkflowStatus != orderdomain.WorkflowUnderReview {
			return nil
		}
		if !allStepsVerified(reloaded, required) {
			return nil
		}

		_, err = s.repo.TransitionWorkflow(ctx, tx, orderID, orderdomain.WorkflowUnderReview, orderdomain.WorkflowApproved, orderdomain.Event{
			Type: "APPROVED", At: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		s.emitAudit(ctx, actorUserID, "order.approved", orderID)
		return nil
	})
}

// assertProofPrerequisite enforces proof step-gating: review and
// rating require the order step already verified, returnWindow requires
// whichever of rating/review the deal composition demands.
func (s *Service) assertProofPrerequisite(order *orderdomain.Order, proofType orderdomain.ProofType, required map[orderdomain.ProofType]bool) error {
	verified := func(p orderdomain.ProofType) bool {
		step, ok := order.Verification[string(p)]
		return ok && step.VerifiedAt != nil
	}

	switch proofType {
	case orderdomain.ProofReview, orderdomain.ProofRating:
		if !verified(orderdomain.ProofOrder) {
			return orderdomain.ErrPurchaseNotVerified
		}
	case orderdomain.ProofReturnWindow:
		if required[orderdomain.ProofRating] && !verified(orderdomain.ProofRating) {
			return orderdomain.ErrRatingNotVerified
		}
		if required[orderdomain.ProofReview] && !verified(orderdomain.ProofReview) {
			return orderdomain.ErrReviewNotVerified
		}
	}
	return nil
}

func allStepsVerified(order *orderdomain.Order, required map[orderdomain.ProofType]bool) bool {
	for proofType, needed := range required {
		if !needed {
			continue
		}
		step, ok := order.Verification[string(proofType)]
		if !ok || step.VerifiedAt == nil {
			return false
		}
	}
	return true
}

func (s *Service) record(ctx context.Context, result string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWorkflowTransition(ctx, "create", result)
	}
}

func (s *Service) recordTransition(ctx context.Context, from, to orderdomain.WorkflowStatus) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWorkflowTransition(ctx, string(from), string(to))
	}
}

func (s *Service) emitAudit(ctx context.Context, actorUserID *snowflake.ID, action string, orderID snowflake.ID) {
	if s.auditSvc == nil {
		return
	}
	actor := "system"
	if actorUserID != nil {
		actor = actorUserID.String()
	}
	s.auditSvc.AuditLog(ctx, actor, action, "order", orderID.String(), nil, nil, nil)
}
