package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	auditdomain "github.com/partnerledger/core/internal/audit/domain"
	campaigndomain "github.com/partnerledger/core/internal/campaign/domain"
	obsmetrics "github.com/partnerledger/core/internal/observability/metrics"
	orderdomain "github.com/partnerledger/core/internal/order/domain"
	settlementdomain "github.com/partnerledger/core/internal/settlement/domain"
	"github.com/partnerledger/core/internal/store"
	walletdomain "github.com/partnerledger/core/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	Repo        settlementdomain.Repository
	OrderSvc    orderdomain.Service
	OrderRepo   orderdomain.Repository
	WalletSvc   walletdomain.Service
	AuditSvc    auditdomain.Service
	CampaignSvc campaigndomain.Service
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log         *zap.Logger
	repo        settlementdomain.Repository
	orderSvc    orderdomain.Service
	orderRepo   orderdomain.Repository
	walletSvc   walletdomain.Service
	auditSvc    auditdomain.Service
	campaignSvc campaigndomain.Service
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) settlementdomain.Service {
	return &Service{
		log:         p.Log.Named("settlement.service"),
		repo:        p.Repo,
		orderSvc:    p.OrderSvc,
		orderRepo:   p.OrderRepo,
		walletSvc:   p.WalletSvc,
		auditSvc:    p.AuditSvc,
		campaignSvc: p.CampaignSvc,
		obsMetrics:  p.ObsMetrics,
	}
}

// Settle implements the five-step APPROVED→settle sequence.
// Every wallet movement and the order field update are guarded so a replay
// of the whole call (e.g. after a crash between steps) is a no-op past the
// point it already committed.
func (s *Service) Settle(ctx context.Context, orderID snowflake.ID) error {
	frozenDisputed := false
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		if order.AffiliateStatus == string(store.AffiliateStatusApprovedSettled) {
			s.record(ctx, "settle", "already_settled")
			return nil
		}
		if order.WorkflowStatus != orderdomain.WorkflowApproved {
			return settlementdomain.ErrOrderNotApproved
		}

		active, err := s.repo.IsBuyerActive(ctx, order.UserID)
		if err != nil {
			return err
		}
		disputed, err := s.repo.HasOpenDispute(ctx, orderID)
		if err != nil {
			return err
		}
		if !active || disputed {
			if _, err := s.repo.MarkFrozenDisputed(ctx, tx, orderID); err != nil {
				return err
			}
			s.record(ctx, "settle", "frozen_disputed")
			s.emitAudit(ctx, "settlement.frozen_disputed", orderID)
			frozenDisputed = true
			return nil
		}

		commissionPaise, payoutPaise, err := s.splitAmounts(ctx, order)
		if err != nil {
			return err
		}

		if _, err := s.walletSvc.ApplyWalletDebit(ctx, walletdomain.MutationInput{
			IdempotencyKey: settleKey(orderID, "debit_brand"),
			Type:           walletdomain.TxnOrderSettlementDebit,
			OwnerUserID:    order.BrandUserID,
			AmountPaise:    order.TotalPaise,
			OrderID:        &orderID,
			Tx:             tx,
		}); err != nil {
			return err
		}

		if payoutPaise > 0 {
			if _, err := s.walletSvc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
				IdempotencyKey: settleKey(orderID, "credit_buyer"),
				Type:           walletdomain.TxnCashbackSettle,
				OwnerUserID:    order.UserID,
				AmountPaise:    payoutPaise,
				OrderID:        &orderID,
				Tx:             tx,
			}); err != nil {
				return err
			}
		}

		if commissionPaise > 0 && order.ManagerName != nil && strings.TrimSpace(*order.ManagerName) != "" {
			mediatorID, err := s.repo.FindUserByMediatorCode(ctx, *order.ManagerName)
			if err != nil {
				return err
			}
			if mediatorID != nil {
				if _, err := s.walletSvc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
					IdempotencyKey: settleKey(orderID, "credit_mediator"),
					Type:           walletdomain.TxnCommissionSettle,
					OwnerUserID:    *mediatorID,
					AmountPaise:    commissionPaise,
					OrderID:        &orderID,
					Tx:             tx,
				}); err != nil {
					return err
				}
			}
		}

		if _, err := s.repo.ApplySettlement(ctx, tx, orderID, uuid.NewString(), "wallet"); err != nil {
			return err
		}

		if err := s.orderSvc.TransitionWorkflow(ctx, orderdomain.TransitionInput{
			OrderID: orderID, From: orderdomain.WorkflowApproved, To: orderdomain.WorkflowRewardPending, Tx: tx,
		}); err != nil && err != orderdomain.ErrInvalidWorkflowState {
			return err
		}

		s.record(ctx, "settle", "settled")
		s.emitAudit(ctx, "settlement.settled", orderID)
		return nil
	})
	if err != nil {
		return err
	}
	if frozenDisputed {
		return settlementdomain.ErrBuyerFrozenDispute
	}
	return nil
}

// Unsettle reverses steps 2–4 of Settle: the brand wallet is credited back,
// the buyer's payout is clawed back, and the mediator's commission is
// clawed back, each keyed under the unsettle:<orderId> namespace so a
// retry cannot double-reverse.
func (s *Service) Unsettle(ctx context.Context, orderID snowflake.ID, actorUserID *snowflake.ID) error {
	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return orderdomain.ErrOrderNotFound
		}
		if order.AffiliateStatus != string(store.AffiliateStatusApprovedSettled) {
			return settlementdomain.ErrOrderNotSettled
		}

		commissionPaise, payoutPaise, err := s.splitAmounts(ctx, order)
		if err != nil {
			return err
		}

		if _, err := s.walletSvc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
			IdempotencyKey: unsettleKey(orderID, "credit_brand"),
			Type:           walletdomain.TxnMarginReversal,
			OwnerUserID:    order.BrandUserID,
			AmountPaise:    order.TotalPaise,
			OrderID:        &orderID,
			Tx:             tx,
		}); err != nil {
			return err
		}

		if payoutPaise > 0 {
			if _, err := s.walletSvc.ApplyWalletDebit(ctx, walletdomain.MutationInput{
				IdempotencyKey: unsettleKey(orderID, "debit_buyer"),
				Type:           walletdomain.TxnRefund,
				OwnerUserID:    order.UserID,
				AmountPaise:    payoutPaise,
				OrderID:        &orderID,
				Tx:             tx,
			}); err != nil {
				return err
			}
		}

		if commissionPaise > 0 && order.ManagerName != nil && strings.TrimSpace(*order.ManagerName) != "" {
			mediatorID, err := s.repo.FindUserByMediatorCode(ctx, *order.ManagerName)
			if err != nil {
				return err
			}
			if mediatorID != nil {
				if _, err := s.walletSvc.ApplyWalletDebit(ctx, walletdomain.MutationInput{
					IdempotencyKey: unsettleKey(orderID, "debit_mediator"),
					Type:           walletdomain.TxnCommissionReversal,
					OwnerUserID:    *mediatorID,
					AmountPaise:    commissionPaise,
					OrderID:        &orderID,
					Tx:             tx,
				}); err != nil {
					return err
				}
			}
		}

		if _, err := s.repo.RevertSettlement(ctx, tx, orderID); err != nil {
			return err
		}

		s.record(ctx, "unsettle", "unsettled")
		s.emitAuditActor(ctx, actorUserID, "settlement.unsettled", orderID)
		return nil
	})
}

func (s *Service) RequestPayout(ctx context.Context, input settlementdomain.PayoutRequestInput) (*settlementdomain.Payout, error) {
	if input.AmountPaise <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}

	var payout *settlementdomain.Payout
	err := s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := s.walletSvc.ApplyWalletDebit(ctx, walletdomain.MutationInput{
			IdempotencyKey: input.IdempotencyKey,
			Type:           walletdomain.TxnPayoutRequest,
			OwnerUserID:    input.UserID,
			AmountPaise:    input.AmountPaise,
			Tx:             tx,
		}); err != nil {
			return err
		}

		payout = &settlementdomain.Payout{
			UserID:      input.UserID,
			AmountPaise: input.AmountPaise,
			Status:      settlementdomain.PayoutRequested,
		}
		return s.repo.InsertPayout(ctx, tx, payout)
	})
	if err != nil {
		return nil, err
	}
	return payout, nil
}

// HandleProviderCallback drives a requested payout to paid or failed. On
// failure the wallet debit from RequestPayout is credited back so the
// beneficiary isn't left short by a provider-side rejection.
func (s *Service) HandleProviderCallback(ctx context.Context, input settlementdomain.ProviderCallbackInput) error {
	return s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		payout, err := s.repo.FindPayout(ctx, input.PayoutID)
		if err != nil {
			return err
		}
		if payout == nil {
			return settlementdomain.ErrPayoutNotFound
		}

		provider := &input.Provider
		providerRef := &input.ProviderRef

		if input.Success {
			rowsAffected, err := s.repo.TransitionPayout(ctx, tx, input.PayoutID, settlementdomain.PayoutRequested, settlementdomain.PayoutPaid, provider, providerRef)
			if err != nil {
				return err
			}
			if rowsAffected == 0 {
				if rowsAffected, err = s.repo.TransitionPayout(ctx, tx, input.PayoutID, settlementdomain.PayoutProcessing, settlementdomain.PayoutPaid, provider, providerRef); err != nil {
					return err
				}
			}
			if rowsAffected == 0 {
				return settlementdomain.ErrInvalidPayoutState
			}
			if _, err := s.walletSvc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
				IdempotencyKey: fmt.Sprintf("payout:%d:complete", input.PayoutID),
				Type:           walletdomain.TxnPayoutComplete,
				OwnerUserID:    payout.UserID,
				AmountPaise:    payout.AmountPaise,
				PayoutID:       &input.PayoutID,
				Tx:             tx,
			}); err != nil {
				return err
			}
			s.emitAudit(ctx, "payout.paid", input.PayoutID)
			return nil
		}

		rowsAffected, err := s.repo.TransitionPayout(ctx, tx, input.PayoutID, settlementdomain.PayoutRequested, settlementdomain.PayoutFailed, provider, providerRef)
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			if rowsAffected, err = s.repo.TransitionPayout(ctx, tx, input.PayoutID, settlementdomain.PayoutProcessing, settlementdomain.PayoutFailed, provider, providerRef); err != nil {
				return err
			}
		}
		if rowsAffected == 0 {
			return settlementdomain.ErrInvalidPayoutState
		}
		if _, err := s.walletSvc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
			IdempotencyKey: fmt.Sprintf("payout:%d:failed", input.PayoutID),
			Type:           walletdomain.TxnPayoutFailed,
			OwnerUserID:    payout.UserID,
			AmountPaise:    payout.AmountPaise,
			PayoutID:       &input.PayoutID,
			Tx:             tx,
		}); err != nil {
			return err
		}
		s.emitAudit(ctx, "payout.failed", input.PayoutID)
		return nil
	})
}

// splitAmounts sums each line item's commission (mediator) and payout
// (buyer) paise; the margin that stays with the brand is implicit in the
// difference between order.TotalPaise and the two sums. Per item, the
// amounts are resolved in precedence order: the mediator's own Deal row
// for the item's campaign wins when one exists; otherwise the campaign's
// assignment object for that mediator; otherwise the item's own
// order-time snapshot.
func (s *Service) splitAmounts(ctx context.Context, order *orderdomain.Order) (commissionPaise, payoutPaise int64, err error) {
	mediatorCode := ""
	if order.ManagerName != nil {
		mediatorCode = strings.TrimSpace(*order.ManagerName)
	}

	for _, item := range order.Items {
		itemCommission, itemPayout := item.CommissionPaise, item.PayoutPaise

		if item.CampaignID != nil && mediatorCode != "" {
			deal, err := s.repo.FindDeal(ctx, *item.CampaignID, mediatorCode)
			if err != nil {
				return 0, 0, err
			}
			if deal != nil {
				itemCommission, itemPayout = deal.CommissionPaise, deal.PayoutPaise
			} else if s.campaignSvc != nil {
				assignment, err := s.campaignSvc.GetAssignment(ctx, *item.CampaignID, mediatorCode)
				if err != nil {
					return 0, 0, err
				}
				if assignment != nil {
					if assignment.CommissionPaise != nil {
						itemCommission = *assignment.CommissionPaise
					}
					if assignment.PayoutPaise != nil {
						itemPayout = *assignment.PayoutPaise
					}
				}
			}
		}

		commissionPaise += itemCommission
		payoutPaise += itemPayout
	}
	return commissionPaise, payoutPaise, nil
}

func settleKey(orderID snowflake.ID, step string) string {
	return fmt.Sprintf("settle:%d:%s", orderID, step)
}

func unsettleKey(orderID snowflake.ID, step string) string {
	return fmt.Sprintf("unsettle:%d:%s", orderID, step)
}

func (s *Service) record(ctx context.Context, step, result string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordSettlementEvent(ctx, step, result)
	}
}

func (s *Service) emitAudit(ctx context.Context, action string, entityID snowflake.ID) {
	s.emitAuditActor(ctx, nil, action, entityID)
}

func (s *Service) emitAuditActor(ctx context.Context, actorUserID *snowflake.ID, action string, entityID snowflake.ID) {
	if s.auditSvc == nil {
		return
	}
	actor := "system"
	if actorUserID != nil {
		actor = actorUserID.String()
	}
	s.auditSvc.AuditLog(ctx, actor, action, "order", entityID.String(), nil, nil, nil)
}
