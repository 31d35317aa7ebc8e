// Package store holds the typed GORM models backing the relational schema:
// every user-visible entity plus the JSON columns that keep event logs and
// verification blobs open-shaped while flat fields stay indexable.
package store

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleMediator Role = "mediator"
	RoleAgency   Role = "agency"
	RoleBrand    Role = "brand"
	RoleAdmin    Role = "admin"
	RoleOps      Role = "ops"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusPending   UserStatus = "pending"
)

// User is the actor record: exactly one primary role plus a multi-role set,
// partner-chain codes, KYC status, and the lockout counters the
// authorization resolver reads/writes on every login attempt.
type User struct {
	ID                snowflake.ID         `gorm:"primaryKey"`
	Role              Role                 `gorm:"type:text;not null"`
	Roles             datatypes.JSON       `gorm:"type:jsonb;not null;default:'[]'"`
	Status            UserStatus           `gorm:"type:text;not null;default:pending;index"`
	Mobile            string               `gorm:"type:text;not null;uniqueIndex:ux_users_mobile,where:deleted_at IS NULL"`
	Username           *string             `gorm:"type:text;uniqueIndex:ux_users_username,where:deleted_at IS NULL"`
	PasswordHash      string               `gorm:"type:text;not null"`
	Name              string               `gorm:"type:text;not null"`
	MediatorCode      *string              `gorm:"type:text;index"`
	ParentCode        *string              `gorm:"type:text;index"`
	BrandCode         *string              `gorm:"type:text;index"`
	ConnectedAgencies datatypes.JSON       `gorm:"type:jsonb"`
	KYCStatus         string               `gorm:"type:text;not null;default:unverified"`
	PaymentInstruments datatypes.JSONMap   `gorm:"type:jsonb"`
	FailedLoginAttempts int                `gorm:"not null;default:0"`
	LockoutUntil      *time.Time           `gorm:""`
	CreatedAt         time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt         time.Time            `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt         gorm.DeletedAt       `gorm:"index"`
}

func (User) TableName() string { return "users" }

// RoleSet decodes the multi-role JSON array, falling back to the single
// primary Role when the column is empty.
func (u User) RoleSet() []Role {
	var roles []Role
	if len(u.Roles) > 0 {
		_ = json.Unmarshal(u.Roles, &roles)
	}
	if len(roles) == 0 {
		return []Role{u.Role}
	}
	return roles
}

// HasRole reports whether role is the user's primary role or appears in
// its multi-role set.
func (u User) HasRole(role Role) bool {
	for _, candidate := range u.RoleSet() {
		if candidate == role {
			return true
		}
	}
	return false
}

// Wallet is one per user, created on demand by ensureWallet.
type Wallet struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	OwnerUserID    snowflake.ID   `gorm:"not null;uniqueIndex:ux_wallets_owner,where:deleted_at IS NULL"`
	AvailablePaise int64          `gorm:"not null;default:0"`
	PendingPaise   int64          `gorm:"not null;default:0"`
	LockedPaise    int64          `gorm:"not null;default:0"`
	Version        int64          `gorm:"not null;default:0"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt      gorm.DeletedAt `gorm:"index"`
}

func (Wallet) TableName() string { return "wallets" }

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

// Transaction is the append-only ledger row; idempotencyKey is the sole
// replay-safety mechanism (C2/C3).
type Transaction struct {
	ID             snowflake.ID      `gorm:"primaryKey"`
	IdempotencyKey string            `gorm:"type:text;not null;uniqueIndex:ux_transactions_idempotency_key"`
	Type           TransactionType   `gorm:"type:text;not null"`
	Status         TransactionStatus `gorm:"type:text;not null"`
	AmountPaise    int64             `gorm:"not null"`
	WalletID       snowflake.ID      `gorm:"not null;index"`
	FromUserID     *snowflake.ID     `gorm:"index"`
	ToUserID       *snowflake.ID     `gorm:"index"`
	OrderID        *snowflake.ID     `gorm:"index"`
	CampaignID     *snowflake.ID     `gorm:"index"`
	PayoutID       *snowflake.ID     `gorm:"index"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index"`
}

func (Transaction) TableName() string { return "transactions" }

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

type DealType string

const (
	DealTypeDiscount DealType = "Discount"
	DealTypeReview   DealType = "Review"
	DealTypeRating   DealType = "Rating"
)

// Campaign is purchasable inventory with a global slot ceiling and an
// optional per-partner assignment map.
type Campaign struct {
	ID                 snowflake.ID      `gorm:"primaryKey"`
	Title              string            `gorm:"type:text;not null"`
	BrandUserID        snowflake.ID      `gorm:"not null;index"`
	OriginalPricePaise int64             `gorm:"not null"`
	PricePaise         int64             `gorm:"not null"`
	PayoutPaise        int64             `gorm:"not null"`
	ReturnWindowDays   int               `gorm:"not null;default:14"`
	DealType           *DealType         `gorm:"type:text"`
	TotalSlots         int               `gorm:"not null"`
	UsedSlots          int               `gorm:"not null;default:0"`
	Status             CampaignStatus    `gorm:"type:text;not null;default:draft;index:ix_campaigns_status_brand_created,priority:1"`
	AllowedAgencyCodes datatypes.JSON    `gorm:"type:jsonb"`
	Assignments        datatypes.JSONMap `gorm:"type:jsonb"`
	Locked             bool              `gorm:"not null;default:false"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_campaigns_status_brand_created,priority:3"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt          gorm.DeletedAt    `gorm:"index"`
}

func (Campaign) TableName() string { return "campaigns" }

// Deal is a mediator-published view on a campaign, unique per
// (campaignId, mediatorCode).
type Deal struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	CampaignID         snowflake.ID `gorm:"not null;uniqueIndex:ux_deals_campaign_mediator,priority:1"`
	MediatorCode       string       `gorm:"type:text;not null;uniqueIndex:ux_deals_campaign_mediator,priority:2"`
	OriginalPricePaise int64        `gorm:"not null"`
	PricePaise         int64        `gorm:"not null"`
	PayoutPaise        int64        `gorm:"not null"`
	CommissionPaise    int64        `gorm:"not null"`
	Category           string       `gorm:"type:text"`
	Rating             float64      `gorm:"not null;default:0"`
	Active             bool         `gorm:"not null;default:true"`
	CreatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt          time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Deal) TableName() string { return "deals" }

type WorkflowStatus string

const (
	WorkflowCreated        WorkflowStatus = "CREATED"
	WorkflowRedirected     WorkflowStatus = "REDIRECTED"
	WorkflowOrdered        WorkflowStatus = "ORDERED"
	WorkflowProofSubmitted WorkflowStatus = "PROOF_SUBMITTED"
	WorkflowUnderReview    WorkflowStatus = "UNDER_REVIEW"
	WorkflowApproved       WorkflowStatus = "APPROVED"
	WorkflowRejected       WorkflowStatus = "REJECTED"
	WorkflowRewardPending  WorkflowStatus = "REWARD_PENDING"
	WorkflowCompleted      WorkflowStatus = "COMPLETED"
	WorkflowFailed         WorkflowStatus = "FAILED"
)

type OrderStatus string

const (
	OrderStatusOrdered   OrderStatus = "Ordered"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
	OrderStatusReturned  OrderStatus = "Returned"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "Pending"
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusRefunded PaymentStatus = "Refunded"
	PaymentStatusFailed   PaymentStatus = "Failed"
)

type AffiliateStatus string

const (
	AffiliateStatusUnchecked      AffiliateStatus = "Unchecked"
	AffiliateStatusPendingCooling AffiliateStatus = "Pending_Cooling"
	AffiliateStatusApprovedSettled AffiliateStatus = "Approved_Settled"
	AffiliateStatusRejected       AffiliateStatus = "Rejected"
	AffiliateStatusFraudAlert     AffiliateStatus = "Fraud_Alert"
	AffiliateStatusCapExceeded    AffiliateStatus = "Cap_Exceeded"
	AffiliateStatusFrozenDisputed AffiliateStatus = "Frozen_Disputed"
)

type SettlementMode string

const (
	SettlementModeWallet   SettlementMode = "wallet"
	SettlementModeExternal SettlementMode = "external"
)

// Order is a buyer's purchase attempt; workflowStatus and affiliateStatus
// are orthogonal state machines driven by the order engine and the
// settlement orchestrator.
type Order struct {
	ID                    snowflake.ID      `gorm:"primaryKey"`
	UserID                snowflake.ID      `gorm:"not null;index:ix_orders_user_created,priority:1"`
	BrandUserID           snowflake.ID      `gorm:"not null;index:ix_orders_brand_workflow_deleted,priority:1"`
	TotalPaise            int64             `gorm:"not null"`
	WorkflowStatus        WorkflowStatus    `gorm:"type:text;not null;default:CREATED;index:ix_orders_brand_workflow_deleted,priority:2"`
	Status                OrderStatus       `gorm:"type:text;not null;default:Ordered"`
	PaymentStatus         PaymentStatus     `gorm:"type:text;not null;default:Pending"`
	AffiliateStatus       AffiliateStatus   `gorm:"type:text;not null;default:Unchecked"`
	Frozen                bool              `gorm:"not null;default:false"`
	FrozenAt              *time.Time        `gorm:""`
	FrozenReason          *string           `gorm:"type:text"`
	ReactivatedAt         *time.Time        `gorm:""`
	ExternalOrderID       *string           `gorm:"type:text;uniqueIndex:ux_orders_external_order_id,where:external_order_id IS NOT NULL AND deleted_at IS NULL"`
	ReviewLink            *string           `gorm:"type:text"`
	Verification          datatypes.JSONMap `gorm:"type:jsonb"`
	Rejection             datatypes.JSONMap `gorm:"type:jsonb"`
	MissingProofRequests  datatypes.JSON    `gorm:"type:jsonb"`
	Events                datatypes.JSON    `gorm:"type:jsonb"`
	ManagerName           *string           `gorm:"type:text;index:ix_orders_manager_created,priority:1"`
	AgencyName            *string           `gorm:"type:text"`
	BuyerName             string            `gorm:"type:text"`
	BuyerMobile           string            `gorm:"type:text"`
	ReviewerName          *string           `gorm:"type:text"`
	BrandName             *string           `gorm:"type:text"`
	SettlementMode        SettlementMode    `gorm:"type:text"`
	SettlementRef         *string           `gorm:"type:text"`
	ExpectedSettlementDate *time.Time       `gorm:""`
	PreOrderID            *snowflake.ID     `gorm:"index"`
	CreatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_orders_user_created,priority:2;index:ix_orders_manager_created,priority:2"`
	UpdatedAt             time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt             gorm.DeletedAt    `gorm:"index:ix_orders_brand_workflow_deleted,priority:3"`
}

func (Order) TableName() string { return "orders" }

// OrderItem is one purchased line item, snapshotting price and commission
// at order-creation time so later campaign/deal edits cannot retroactively
// change a placed order.
type OrderItem struct {
	ID                   snowflake.ID  `gorm:"primaryKey"`
	OrderID              snowflake.ID  `gorm:"not null;index"`
	ProductID            string        `gorm:"type:text;not null"`
	Title                string        `gorm:"type:text;not null"`
	Image                *string       `gorm:"type:text"`
	PriceAtPurchasePaise int64         `gorm:"not null"`
	CommissionPaise      int64         `gorm:"not null"`
	PayoutPaise          int64         `gorm:"not null;default:0"`
	CampaignID           *snowflake.ID `gorm:"index"`
	Quantity             int           `gorm:"not null;default:1"`
	DealType             *DealType     `gorm:"type:text"`
	Platform             *string       `gorm:"type:text"`
	BrandName            *string       `gorm:"type:text"`
}

func (OrderItem) TableName() string { return "order_items" }

type InviteStatus string

const (
	InviteStatusActive  InviteStatus = "active"
	InviteStatusUsed    InviteStatus = "used"
	InviteStatusRevoked InviteStatus = "revoked"
	InviteStatusExpired InviteStatus = "expired"
)

// Invite is an activation token consumed atomically by C4.
type Invite struct {
	ID           snowflake.ID  `gorm:"primaryKey"`
	Code         string        `gorm:"type:text;not null;uniqueIndex:ux_invites_code"`
	Role         Role          `gorm:"type:text;not null"`
	ParentCode   *string       `gorm:"type:text;index"`
	ParentUserID *snowflake.ID `gorm:"index"`
	CreatedBy    snowflake.ID  `gorm:"not null"`
	Status       InviteStatus  `gorm:"type:text;not null;default:active;index"`
	MaxUses      int           `gorm:"not null;default:1"`
	UseCount     int           `gorm:"not null;default:0"`
	ExpiresAt    *time.Time    `gorm:""`
	CreatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Invite) TableName() string { return "invites" }

// InviteUse is one append-only row of the invite's uses[] log.
type InviteUse struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	InviteID snowflake.ID `gorm:"not null;index"`
	UsedBy   snowflake.ID `gorm:"not null"`
	UsedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (InviteUse) TableName() string { return "invite_uses" }

type PayoutStatus string

const (
	PayoutStatusRequested  PayoutStatus = "requested"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusPaid       PayoutStatus = "paid"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusCanceled   PayoutStatus = "canceled"
	PayoutStatusRecorded   PayoutStatus = "recorded"
)

// Payout is a beneficiary disbursement, unique on (provider, providerRef)
// when both are present so a provider callback replay cannot double-post.
type Payout struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	UserID      snowflake.ID `gorm:"not null;index"`
	AmountPaise int64        `gorm:"not null"`
	Status      PayoutStatus `gorm:"type:text;not null;default:requested"`
	Provider    *string      `gorm:"type:text;uniqueIndex:ux_payouts_provider_ref,priority:1,where:provider IS NOT NULL AND provider_ref IS NOT NULL"`
	ProviderRef *string      `gorm:"type:text;uniqueIndex:ux_payouts_provider_ref,priority:2,where:provider IS NOT NULL AND provider_ref IS NOT NULL"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Payout) TableName() string { return "payouts" }

type PendingConnectionStatus string

const (
	PendingConnectionPending  PendingConnectionStatus = "pending"
	PendingConnectionAccepted PendingConnectionStatus = "accepted"
	PendingConnectionRejected PendingConnectionStatus = "rejected"
)

// PendingConnection is a brand-side inbox entry for a requesting agency.
type PendingConnection struct {
	ID          snowflake.ID            `gorm:"primaryKey"`
	BrandUserID snowflake.ID            `gorm:"not null;index"`
	AgencyCode  string                  `gorm:"type:text;not null"`
	Status      PendingConnectionStatus `gorm:"type:text;not null;default:pending"`
	CreatedAt   time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time               `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PendingConnection) TableName() string { return "pending_connections" }

type TicketStatus string

const (
	TicketStatusOpen     TicketStatus = "open"
	TicketStatusResolved TicketStatus = "resolved"
	TicketStatusClosed   TicketStatus = "closed"
)

// Ticket is a support/dispute record, optionally tied to an order; an open
// ticket on an order blocks settlement (C7 step 1).
type Ticket struct {
	ID          snowflake.ID  `gorm:"primaryKey"`
	OrderID     *snowflake.ID `gorm:"index"`
	RaisedBy    snowflake.ID  `gorm:"not null"`
	Subject     string        `gorm:"type:text;not null"`
	Description string        `gorm:"type:text"`
	Status      TicketStatus  `gorm:"type:text;not null;default:open;index"`
	CreatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Ticket) TableName() string { return "tickets" }

// Suspension records an admin action against a user.
type Suspension struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	UserID      snowflake.ID `gorm:"not null;index"`
	Reason      string       `gorm:"type:text;not null"`
	SuspendedBy snowflake.ID `gorm:"not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	LiftedAt    *time.Time   `gorm:""`
}

func (Suspension) TableName() string { return "suspensions" }

// AuditLog is append-only; no code path ever deletes or mutates a row.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	Actor      string            `gorm:"type:text;not null"`
	Action     string            `gorm:"type:text;not null"`
	EntityType string            `gorm:"type:text;not null;index:ix_audit_logs_entity_created,priority:1"`
	EntityID   string            `gorm:"type:text;not null;index:ix_audit_logs_entity_created,priority:2"`
	IP         *string           `gorm:"type:text"`
	UserAgent  *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index:ix_audit_logs_entity_created,priority:3"`
}

func (AuditLog) TableName() string { return "audit_logs" }

// SystemConfig is a simple key/value operator-editable record, distinct
// from the file-watched config.SystemConfigHolder used for process-local
// hot reload — this table is the durable, admin-API-editable copy.
type SystemConfig struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	Key       string            `gorm:"type:text;not null;uniqueIndex:ux_system_configs_key"`
	Value     datatypes.JSONMap `gorm:"type:jsonb"`
	UpdatedBy snowflake.ID      `gorm:"not null"`
	UpdatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SystemConfig) TableName() string { return "system_configs" }

// PushSubscription is a webpush endpoint registered per (user, app).
type PushSubscription struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	UserID    snowflake.ID      `gorm:"not null;uniqueIndex:ux_push_subscriptions_user_app,priority:1"`
	AppID     string            `gorm:"type:text;not null;uniqueIndex:ux_push_subscriptions_user_app,priority:2"`
	Endpoint  string            `gorm:"type:text;not null"`
	Keys      datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PushSubscription) TableName() string { return "push_subscriptions" }
