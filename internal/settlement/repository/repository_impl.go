package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	settlementdomain "github.com/partnerledger/core/internal/settlement/domain"
	"github.com/partnerledger/core/internal/store"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(db *gorm.DB, genID *snowflake.Node) settlementdomain.Repository {
	return &repo{db: db, genID: genID}
}

func (r *repo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *repo) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *repo) IsBuyerActive(ctx context.Context, buyerUserID snowflake.ID) (bool, error) {
	var user store.User
	err := r.db.WithContext(ctx).Select("status").Where("id = ? AND deleted_at IS NULL", buyerUserID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Status == store.UserStatusActive, nil
}

func (r *repo) HasOpenDispute(ctx context.Context, orderID snowflake.ID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&store.Ticket{}).
		Where("order_id = ? AND status = ?", orderID, store.TicketStatusOpen).
		Count(&count).Error
	return count > 0, err
}

// MarkFrozenDisputed is the single conditional UPDATE guarding step 1 of
// guarding step 1 of settlement: it only applies once per order.
func (r *repo) MarkFrozenDisputed(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (int64, error) {
	now := time.Now().UTC()
	reason := "open dispute or inactive buyer at settlement"
	result := r.conn(tx).WithContext(ctx).Exec(
		`UPDATE orders SET affiliate_status = ?, frozen = true, frozen_at = ?, frozen_reason = ?, updated_at = ?
		 WHERE id = ? AND affiliate_status <> ? AND deleted_at IS NULL`,
		string(store.AffiliateStatusFrozenDisputed), now, reason, now, orderID, string(store.AffiliateStatusFrozenDisputed),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ApplySettlement is the single conditional UPDATE guarding step 4: a
// replay after the first success affects zero rows, which the service
// treats as an already-settled no-op rather than a failure.
func (r *repo) ApplySettlement(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, settlementRef, settlementMode string) (int64, error) {
	result := r.conn(tx).WithContext(ctx).Exec(
		`UPDATE orders SET affiliate_status = ?, payment_status = ?, settlement_ref = ?, settlement_mode = ?, updated_at = ?
		 WHERE id = ? AND affiliate_status <> ? AND deleted_at IS NULL`,
		string(store.AffiliateStatusApprovedSettled), string(store.PaymentStatusPaid), settlementRef, settlementMode, time.Now().UTC(),
		orderID, string(store.AffiliateStatusApprovedSettled),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) RevertSettlement(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (int64, error) {
	result := r.conn(tx).WithContext(ctx).Exec(
		`UPDATE orders SET affiliate_status = ?, payment_status = ?, settlement_ref = NULL, updated_at = ?
		 WHERE id = ? AND affiliate_status = ? AND deleted_at IS NULL`,
		string(store.AffiliateStatusUnchecked), string(store.PaymentStatusPending), time.Now().UTC(),
		orderID, string(store.AffiliateStatusApprovedSettled),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) FindUserByMediatorCode(ctx context.Context, code string) (*snowflake.ID, error) {
	var user store.User
	err := r.db.WithContext(ctx).Select("id").Where("mediator_code = ? AND deleted_at IS NULL", code).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user.ID, nil
}

func (r *repo) FindDeal(ctx context.Context, campaignID snowflake.ID, mediatorCode string) (*settlementdomain.DealAmounts, error) {
	var deal store.Deal
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND mediator_code = ? AND active = ?", campaignID, mediatorCode, true).
		Take(&deal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settlementdomain.DealAmounts{
		CommissionPaise: deal.CommissionPaise,
		PayoutPaise:     deal.PayoutPaise,
	}, nil
}

func (r *repo) InsertPayout(ctx context.Context, tx *gorm.DB, payout *settlementdomain.Payout) error {
	row := &store.Payout{
		ID:          r.genID.Generate(),
		UserID:      payout.UserID,
		AmountPaise: payout.AmountPaise,
		Status:      store.PayoutStatus(payout.Status),
		Provider:    payout.Provider,
		ProviderRef: payout.ProviderRef,
	}
	if err := r.conn(tx).WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	payout.ID = row.ID
	return nil
}

func (r *repo) FindPayout(ctx context.Context, payoutID snowflake.ID) (*settlementdomain.Payout, error) {
	var row store.Payout
	err := r.db.WithContext(ctx).Where("id = ?", payoutID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settlementdomain.Payout{
		ID:          row.ID,
		UserID:      row.UserID,
		AmountPaise: row.AmountPaise,
		Status:      settlementdomain.PayoutStatus(row.Status),
		Provider:    row.Provider,
		ProviderRef: row.ProviderRef,
	}, nil
}

// TransitionPayout is the single conditional UPDATE for the payout state
// machine: requested→processing→{paid,failed}, guarded on the expected
// from-state so a duplicate provider callback cannot double-apply.
func (r *repo) TransitionPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID, from, to settlementdomain.PayoutStatus, provider, providerRef *string) (int64, error) {
	result := r.conn(tx).WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, provider = COALESCE(?, provider), provider_ref = COALESCE(?, provider_ref), updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), provider, providerRef, time.Now().UTC(), payoutID, string(from),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
