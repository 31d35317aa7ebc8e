package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type PayoutStatus string

const (
	PayoutRequested  PayoutStatus = "requested"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"
)

type Payout struct {
	ID          snowflake.ID
	UserID      snowflake.ID
	AmountPaise int64
	Status      PayoutStatus
	Provider    *string
	ProviderRef *string
}

type PayoutRequestInput struct {
	UserID         snowflake.ID
	AmountPaise    int64
	IdempotencyKey string
}

// DealAmounts is a mediator-published deal's own commission/payout paise,
// which overrides the order item's snapshot when one exists for the
// item's campaign and the order's mediator.
type DealAmounts struct {
	CommissionPaise int64
	PayoutPaise     int64
}

type ProviderCallbackInput struct {
	PayoutID      snowflake.ID
	Provider      string
	ProviderRef   string
	Success       bool
	FailureReason *string
}

// Repository is the store-backed persistence surface for settlement and
// payouts. Wallet movement itself goes through walletdomain.Service so the
// idempotency-by-key contract on Transaction stays the single source of
// truth; this repository only owns the order's settlement fields and the
// payout rows.
type Repository interface {
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	IsBuyerActive(ctx context.Context, buyerUserID snowflake.ID) (bool, error)
	HasOpenDispute(ctx context.Context, orderID snowflake.ID) (bool, error)
	// MarkFrozenDisputed sets affiliateStatus=Frozen_Disputed and freezes the
	// order in one statement, guarded so it only applies once.
	MarkFrozenDisputed(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (int64, error)
	// ApplySettlement sets affiliateStatus=Approved_Settled, paymentStatus=Paid,
	// settlementRef and settlementMode, guarded so a replay after the first
	// success is a no-op (rowsAffected=0, not an error).
	ApplySettlement(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, settlementRef, settlementMode string) (int64, error)
	// RevertSettlement is the unsettle counterpart, guarded the same way.
	RevertSettlement(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (int64, error)

	InsertPayout(ctx context.Context, tx *gorm.DB, payout *Payout) error
	FindPayout(ctx context.Context, payoutID snowflake.ID) (*Payout, error)
	TransitionPayout(ctx context.Context, tx *gorm.DB, payoutID snowflake.ID, from, to PayoutStatus, provider, providerRef *string) (int64, error)
	// FindUserByMediatorCode resolves a mediator's user id from the code
	// snapshotted on the order so the commission credit lands on the right
	// wallet even if the mediator's own profile later changes code.
	FindUserByMediatorCode(ctx context.Context, code string) (*snowflake.ID, error)
	// FindDeal looks up the mediator's published deal row for a campaign,
	// returning nil when no active deal exists for that pair.
	FindDeal(ctx context.Context, campaignID snowflake.ID, mediatorCode string) (*DealAmounts, error)
}

// Service implements the settlement orchestrator.
type Service interface {
	// Settle runs the APPROVED→settle five-step sequence. It is safe to
	// call more than once for the same order: every step is idempotent on
	// the orderId-scoped key namespace.
	Settle(ctx context.Context, orderID snowflake.ID) error
	// Unsettle reverses the wallet movement and order fields of a prior
	// Settle call, guarded by its own idempotency namespace.
	Unsettle(ctx context.Context, orderID snowflake.ID, actorUserID *snowflake.ID) error
	RequestPayout(ctx context.Context, input PayoutRequestInput) (*Payout, error)
	HandleProviderCallback(ctx context.Context, input ProviderCallbackInput) error
}

var (
	ErrOrderNotApproved   = errors.New("ORDER_NOT_APPROVED")
	ErrOrderNotSettled    = errors.New("ORDER_NOT_SETTLED")
	ErrBuyerFrozenDispute = errors.New("BUYER_FROZEN_OR_DISPUTED")
	ErrPayoutNotFound     = errors.New("PAYOUT_NOT_FOUND")
	ErrInvalidPayoutState = errors.New("INVALID_PAYOUT_STATE")
)
