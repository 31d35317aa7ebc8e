package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	walletdomain "github.com/partnerledger/core/internal/wallet/domain"
	"github.com/partnerledger/core/internal/store"
	"github.com/partnerledger/core/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(db *gorm.DB, genID *snowflake.Node) walletdomain.Repository {
	return &repo{db: db, genID: genID}
}

func (r *repo) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *repo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *repo) FindTransactionByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*walletdomain.Transaction, error) {
	var row store.Transaction
	err := r.conn(tx).WithContext(ctx).Where("idempotency_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDomainTransaction(row), nil
}

// EnsureWallet upserts a zero-balance wallet for the owner. Under a
// concurrent first-creation race the unique index on owner_user_id rejects
// the loser, which re-reads the winning row.
func (r *repo) EnsureWallet(ctx context.Context, tx *gorm.DB, ownerUserID snowflake.ID) (*walletdomain.Wallet, error) {
	conn := r.conn(tx)

	var existing store.Wallet
	err := conn.WithContext(ctx).Where("owner_user_id = ? AND deleted_at IS NULL", ownerUserID).Take(&existing).Error
	if err == nil {
		return toDomainWallet(existing), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	created := store.Wallet{
		ID:          r.genID.Generate(),
		OwnerUserID: ownerUserID,
	}
	if err := conn.WithContext(ctx).Create(&created).Error; err != nil {
		if isDuplicateKey(err) {
			if readErr := conn.WithContext(ctx).Where("owner_user_id = ? AND deleted_at IS NULL", ownerUserID).Take(&existing).Error; readErr != nil {
				return nil, readErr
			}
			return toDomainWallet(existing), nil
		}
		return nil, err
	}
	return toDomainWallet(created), nil
}

// CreditWallet performs the ceiling-guarded conditional update in a single
// statement: the balance check and the mutation are the same UPDATE, so no
// read-then-write race is possible.
func (r *repo) CreditWallet(ctx context.Context, tx *gorm.DB, ownerUserID snowflake.ID, amountPaise, maxBalancePaise int64) (*walletdomain.Wallet, error) {
	conn := r.conn(tx)

	result := conn.WithContext(ctx).Exec(
		`UPDATE wallets SET available_paise = available_paise + ?, version = version + 1, updated_at = ?
		 WHERE owner_user_id = ? AND deleted_at IS NULL AND available_paise <= ? - ?`,
		amountPaise, time.Now().UTC(), ownerUserID, maxBalancePaise, amountPaise,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, r.classifyGuardFailure(ctx, conn, ownerUserID, walletdomain.ErrBalanceLimitExceeded)
	}

	var row store.Wallet
	if err := conn.WithContext(ctx).Where("owner_user_id = ?", ownerUserID).Take(&row).Error; err != nil {
		return nil, err
	}
	return toDomainWallet(row), nil
}

// DebitWallet performs the floor-guarded conditional update in a single
// statement, mirroring CreditWallet's ceiling guard.
func (r *repo) DebitWallet(ctx context.Context, tx *gorm.DB, ownerUserID snowflake.ID, amountPaise int64) (*walletdomain.Wallet, error) {
	conn := r.conn(tx)

	result := conn.WithContext(ctx).Exec(
		`UPDATE wallets SET available_paise = available_paise - ?, version = version + 1, updated_at = ?
		 WHERE owner_user_id = ? AND deleted_at IS NULL AND available_paise >= ?`,
		amountPaise, time.Now().UTC(), ownerUserID, amountPaise,
	)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, r.classifyGuardFailure(ctx, conn, ownerUserID, walletdomain.ErrInsufficientFunds)
	}

	var row store.Wallet
	if err := conn.WithContext(ctx).Where("owner_user_id = ?", ownerUserID).Take(&row).Error; err != nil {
		return nil, err
	}
	return toDomainWallet(row), nil
}

func (r *repo) classifyGuardFailure(ctx context.Context, conn *gorm.DB, ownerUserID snowflake.ID, guardErr error) error {
	var row store.Wallet
	err := conn.WithContext(ctx).Where("owner_user_id = ? AND deleted_at IS NULL", ownerUserID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return walletdomain.ErrWalletNotFound
	}
	if err != nil {
		return err
	}
	return guardErr
}

func (r *repo) InsertTransaction(ctx context.Context, tx *gorm.DB, txn *walletdomain.Transaction) error {
	if txn.ID == 0 {
		txn.ID = r.genID.Generate()
	}
	row := store.Transaction{
		ID:             txn.ID,
		IdempotencyKey: txn.IdempotencyKey,
		Type:           store.TransactionType(txn.Type),
		Status:         store.TransactionStatus(txn.Status),
		AmountPaise:    txn.AmountPaise,
		WalletID:       txn.WalletID,
		FromUserID:     txn.FromUserID,
		ToUserID:       txn.ToUserID,
		OrderID:        txn.OrderID,
		CampaignID:     txn.CampaignID,
		PayoutID:       txn.PayoutID,
		Metadata:       datatypes.JSONMap(txn.Metadata),
	}
	return r.conn(tx).WithContext(ctx).Create(&row).Error
}

func toDomainWallet(row store.Wallet) *walletdomain.Wallet {
	return &walletdomain.Wallet{
		ID:             row.ID,
		OwnerUserID:    row.OwnerUserID,
		AvailablePaise: row.AvailablePaise,
		PendingPaise:   row.PendingPaise,
		LockedPaise:    row.LockedPaise,
		Version:        row.Version,
	}
}

func toDomainTransaction(row store.Transaction) *walletdomain.Transaction {
	return &walletdomain.Transaction{
		ID:             row.ID,
		IdempotencyKey: row.IdempotencyKey,
		Type:           walletdomain.TransactionType(row.Type),
		Status:         walletdomain.TransactionStatus(row.Status),
		AmountPaise:    row.AmountPaise,
		WalletID:       row.WalletID,
		FromUserID:     row.FromUserID,
		ToUserID:       row.ToUserID,
		OrderID:        row.OrderID,
		CampaignID:     row.CampaignID,
		PayoutID:       row.PayoutID,
		Metadata:       row.Metadata,
	}
}

func isDuplicateKey(err error) bool {
	return db.IsDuplicateKeyErr(err)
}
