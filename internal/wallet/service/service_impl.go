package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/partnerledger/core/internal/audit/domain"
	"github.com/partnerledger/core/internal/config"
	obsmetrics "github.com/partnerledger/core/internal/observability/metrics"
	walletdomain "github.com/partnerledger/core/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Repo       walletdomain.Repository
	AuditSvc   auditdomain.Service
	ConfigHold *config.SystemConfigHolder
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	repo       walletdomain.Repository
	auditSvc   auditdomain.Service
	configHold *config.SystemConfigHolder
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) walletdomain.Service {
	return &Service{
		log:        p.Log.Named("wallet.service"),
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		configHold: p.ConfigHold,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) EnsureWallet(ctx context.Context, ownerUserID snowflake.ID) (*walletdomain.Wallet, error) {
	return s.repo.EnsureWallet(ctx, nil, ownerUserID)
}

func (s *Service) ApplyWalletCredit(ctx context.Context, input walletdomain.MutationInput) (*walletdomain.Transaction, error) {
	return s.applyMutation(ctx, input, true)
}

func (s *Service) ApplyWalletDebit(ctx context.Context, input walletdomain.MutationInput) (*walletdomain.Transaction, error) {
	return s.applyMutation(ctx, input, false)
}

func (s *Service) applyMutation(ctx context.Context, input walletdomain.MutationInput, credit bool) (*walletdomain.Transaction, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" || input.AmountPaise <= 0 {
		return nil, walletdomain.ErrInvalidAmount
	}

	run := func(tx *gorm.DB) (*walletdomain.Transaction, error) {
		if existing, err := s.repo.FindTransactionByIdempotencyKey(ctx, tx, key); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}

		wallet, err := s.repo.EnsureWallet(ctx, tx, input.OwnerUserID)
		if err != nil {
			return nil, err
		}

		var guardErr error
		if credit {
			maxBalance := config.DefaultSystemConfig().WalletMaxBalancePaise
			if s.configHold != nil {
				maxBalance = s.configHold.Get().WalletMaxBalancePaise
			}
			wallet, guardErr = s.repo.CreditWallet(ctx, tx, input.OwnerUserID, input.AmountPaise, maxBalance)
		} else {
			wallet, guardErr = s.repo.DebitWallet(ctx, tx, input.OwnerUserID, input.AmountPaise)
		}
		if guardErr != nil {
			s.recordTxnMetric(ctx, input.Type, "failed")
			return nil, guardErr
		}

		txn := &walletdomain.Transaction{
			IdempotencyKey: key,
			Type:           input.Type,
			Status:         walletdomain.TransactionStatusCompleted,
			AmountPaise:    input.AmountPaise,
			WalletID:       wallet.ID,
			FromUserID:     input.FromUserID,
			ToUserID:       input.ToUserID,
			OrderID:        input.OrderID,
			CampaignID:     input.CampaignID,
			PayoutID:       input.PayoutID,
			Metadata:       input.Metadata,
		}
		if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return nil, err
		}
		return txn, nil
	}

	var txn *walletdomain.Transaction
	var err error
	if input.Tx != nil {
		txn, err = run(input.Tx)
	} else {
		err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
			var innerErr error
			txn, innerErr = run(tx)
			return innerErr
		})
	}
	if err != nil {
		return nil, err
	}

	s.recordTxnMetric(ctx, input.Type, "completed")
	s.emitAudit(ctx, input, txn)
	return txn, nil
}

func (s *Service) recordTxnMetric(ctx context.Context, txType walletdomain.TransactionType, status string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordWalletTransaction(ctx, string(txType), status)
	}
}

func (s *Service) emitAudit(ctx context.Context, input walletdomain.MutationInput, txn *walletdomain.Transaction) {
	if s.auditSvc == nil || txn == nil {
		return
	}
	actor := "system"
	if input.FromUserID != nil {
		actor = input.FromUserID.String()
	} else if input.ToUserID != nil {
		actor = input.ToUserID.String()
	}
	s.auditSvc.AuditLog(ctx, actor, "wallet."+string(input.Type), "wallet", txn.WalletID.String(), nil, nil, map[string]any{
		"transaction_id":  txn.ID.String(),
		"amount_paise":    txn.AmountPaise,
		"idempotency_key": txn.IdempotencyKey,
	})
}
