package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TxnBrandDeposit         TransactionType = "brand_deposit"
	TxnPlatformFee          TransactionType = "platform_fee"
	TxnCommissionLock       TransactionType = "commission_lock"
	TxnCommissionSettle     TransactionType = "commission_settle"
	TxnCashbackLock         TransactionType = "cashback_lock"
	TxnCashbackSettle       TransactionType = "cashback_settle"
	TxnOrderSettlementDebit TransactionType = "order_settlement_debit"
	TxnCommissionReversal   TransactionType = "commission_reversal"
	TxnMarginReversal       TransactionType = "margin_reversal"
	TxnAgencyPayout         TransactionType = "agency_payout"
	TxnAgencyReceipt        TransactionType = "agency_receipt"
	TxnPayoutRequest        TransactionType = "payout_request"
	TxnPayoutComplete       TransactionType = "payout_complete"
	TxnPayoutFailed         TransactionType = "payout_failed"
	TxnRefund               TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusReversed  TransactionStatus = "reversed"
)

// Wallet is the domain-facing view of store.Wallet.
type Wallet struct {
	ID             snowflake.ID
	OwnerUserID    snowflake.ID
	AvailablePaise int64
	PendingPaise   int64
	LockedPaise    int64
	Version        int64
}

// Transaction is the domain-facing view of store.Transaction.
type Transaction struct {
	ID             snowflake.ID
	IdempotencyKey string
	Type           TransactionType
	Status         TransactionStatus
	AmountPaise    int64
	WalletID       snowflake.ID
	FromUserID     *snowflake.ID
	ToUserID       *snowflake.ID
	OrderID        *snowflake.ID
	CampaignID     *snowflake.ID
	PayoutID       *snowflake.ID
	Metadata       map[string]any
}

// MutationInput carries everything a credit or debit needs.
type MutationInput struct {
	IdempotencyKey string
	Type           TransactionType
	OwnerUserID    snowflake.ID
	AmountPaise    int64
	FromUserID     *snowflake.ID
	ToUserID       *snowflake.ID
	OrderID        *snowflake.ID
	CampaignID     *snowflake.ID
	PayoutID       *snowflake.ID
	Metadata       map[string]any
	// Tx, when set, is the enclosing transaction the caller already opened.
	// When nil the service opens and commits its own transaction.
	Tx *gorm.DB
}

// Repository is the store-backed persistence surface for wallets and transactions.
type Repository interface {
	FindTransactionByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*Transaction, error)
	EnsureWallet(ctx context.Context, tx *gorm.DB, ownerUserID snowflake.ID) (*Wallet, error)
	CreditWallet(ctx context.Context, tx *gorm.DB, ownerUserID snowflake.ID, amountPaise, maxBalancePaise int64) (*Wallet, error)
	DebitWallet(ctx context.Context, tx *gorm.DB, ownerUserID snowflake.ID, amountPaise int64) (*Wallet, error)
	InsertTransaction(ctx context.Context, tx *gorm.DB, txn *Transaction) error
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service implements ensureWallet/applyWalletCredit/applyWalletDebit.
type Service interface {
	EnsureWallet(ctx context.Context, ownerUserID snowflake.ID) (*Wallet, error)
	ApplyWalletCredit(ctx context.Context, input MutationInput) (*Transaction, error)
	ApplyWalletDebit(ctx context.Context, input MutationInput) (*Transaction, error)
}

var (
	ErrInvalidAmount          = errors.New("INVALID_AMOUNT")
	ErrWalletNotFound         = errors.New("WALLET_NOT_FOUND")
	ErrWalletDeleted          = errors.New("WALLET_DELETED")
	ErrBalanceLimitExceeded   = errors.New("BALANCE_LIMIT_EXCEEDED")
	ErrInsufficientFunds      = errors.New("INSUFFICIENT_FUNDS")
)
