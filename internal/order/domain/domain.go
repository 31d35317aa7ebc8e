package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

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

// Terminal reports whether no further transition is legal from this state.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowCompleted, WorkflowFailed, WorkflowRejected:
		return true
	}
	return false
}

// ProofType enumerates the verification steps a deal composition can demand.
type ProofType string

const (
	ProofOrder        ProofType = "order"
	ProofReview       ProofType = "review"
	ProofRating       ProofType = "rating"
	ProofReturnWindow ProofType = "returnWindow"
)

// VerificationStep is one entry of the order's verification JSON map.
type VerificationStep struct {
	VerifiedAt   *time.Time `json:"verifiedAt,omitempty"`
	VerifiedBy   string     `json:"verifiedBy,omitempty"`
	AutoVerified bool       `json:"autoVerified,omitempty"`
	Confidence   int        `json:"confidence,omitempty"`
}

// Event is one append-only entry of the order's workflow event log.
type Event struct {
	Type        string         `json:"type"`
	At          time.Time      `json:"at"`
	ActorUserID *snowflake.ID  `json:"actorUserId,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type Item struct {
	ID                   snowflake.ID
	ProductID            string
	Title                string
	Image                *string
	PriceAtPurchasePaise int64
	CommissionPaise      int64
	PayoutPaise          int64
	CampaignID           *snowflake.ID
	Quantity             int
	DealType             *string
	Platform             *string
	BrandName            *string
}

type Order struct {
	ID              snowflake.ID
	UserID          snowflake.ID
	BrandUserID     snowflake.ID
	TotalPaise      int64
	WorkflowStatus  WorkflowStatus
	Status          string
	PaymentStatus   string
	AffiliateStatus string
	Frozen          bool
	FrozenReason    *string
	ExternalOrderID *string
	Verification    map[string]VerificationStep
	Rejection       map[string]any
	ManagerName     *string
	AgencyName      *string
	BuyerName       string
	BuyerMobile     string
	PreOrderID      *snowflake.ID
	Events          []Event
	Items           []Item
	CreatedAt       time.Time
}

// RequiredProofTypes derives the set of proof steps an order's line items
// demand: Rating deals need rating, Review deals need review, and any
// non-Discount deal needs the returnWindow step in addition to order proof.
func (o *Order) RequiredProofTypes() map[ProofType]bool {
	required := map[ProofType]bool{ProofOrder: true}
	for _, item := range o.Items {
		if item.DealType == nil {
			continue
		}
		switch *item.DealType {
		case "Rating":
			required[ProofRating] = true
			required[ProofReturnWindow] = true
		case "Review":
			required[ProofReview] = true
			required[ProofReturnWindow] = true
		}
	}
	return required
}

type CreateInput struct {
	UserID          snowflake.ID
	BrandUserID     snowflake.ID
	TotalPaise      int64
	ManagerName     *string
	AgencyName      *string
	BuyerName       string
	BuyerMobile     string
	ExternalOrderID *string
	PreOrderID      *snowflake.ID
	Items           []Item
	Direct          bool
	ActorUserID     *snowflake.ID
	// ClaimSlot, when set, runs inside the same transaction as the order
	// insert so a campaign's slot ledger and the order it backs commit or
	// roll back together. The controller layer wires this to the campaign
	// service's ClaimSlot for each line item's campaign.
	ClaimSlot func(ctx context.Context, tx *gorm.DB) error
}

type TransitionInput struct {
	OrderID     snowflake.ID
	From        WorkflowStatus
	To          WorkflowStatus
	ActorUserID *snowflake.ID
	Metadata    map[string]any
	Tx          *gorm.DB
}

// Repository is the store-backed persistence surface for orders.
type Repository interface {
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	InsertOrder(ctx context.Context, tx *gorm.DB, order *Order) error
	FindOrder(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*Order, error)
	FindActiveOrderByExternalID(ctx context.Context, externalOrderID string) (*Order, error)
	FindNonTerminalOrderForBuyerProduct(ctx context.Context, buyerUserID snowflake.ID, productID string) (*Order, error)
	CountOrdersSince(ctx context.Context, buyerUserID snowflake.ID, since time.Time) (int64, error)
	// TransitionWorkflow performs the single conditional UPDATE: it only
	// succeeds when workflowStatus still equals from and frozen is false.
	// Zero rows affected means the caller must re-read to classify the
	// failure as a stale transition or a frozen order.
	TransitionWorkflow(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, from, to WorkflowStatus, event Event) (int64, error)
	SetFrozen(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, frozen bool, reason *string, event Event) (int64, error)
	UpdateVerification(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, step ProofType, v VerificationStep) error
}

// Service implements the order workflow engine.
type Service interface {
	CreateOrder(ctx context.Context, input CreateInput) (*Order, error)
	TransitionWorkflow(ctx context.Context, input TransitionInput) error
	Freeze(ctx context.Context, orderID snowflake.ID, reason string, actorUserID *snowflake.ID) error
	Reactivate(ctx context.Context, orderID snowflake.ID, actorUserID *snowflake.ID) error
	SubmitProof(ctx context.Context, orderID snowflake.ID, proofType ProofType, confidence int, actorUserID *snowflake.ID) error
}

var (
	ErrOrderNotFound        = errors.New("ORDER_NOT_FOUND")
	ErrInvalidWorkflowState = errors.New("INVALID_WORKFLOW_STATE")
	ErrOrderFrozen          = errors.New("ORDER_FROZEN")
	ErrDuplicateExternalID  = errors.New("DUPLICATE_EXTERNAL_ORDER_ID")
	ErrDuplicateDealOrder   = errors.New("DUPLICATE_DEAL_ORDER")
	ErrVelocityLimit        = errors.New("VELOCITY_LIMIT")
	ErrProofNotRequired     = errors.New("NOT_REQUIRED")
	ErrPurchaseNotVerified  = errors.New("PURCHASE_NOT_VERIFIED")
	ErrRatingNotVerified    = errors.New("RATING_NOT_VERIFIED")
	ErrReviewNotVerified    = errors.New("REVIEW_NOT_VERIFIED")
)

// AIAutoVerifyThreshold is the default confidence at which the workflow
// engine marks a proof step verified without a human reviewer.
const AIAutoVerifyThreshold = 90

// VelocityHourlyLimit and VelocityDailyLimit bound order creation per buyer.
const (
	VelocityHourlyLimit = 10
	VelocityDailyLimit  = 30
)
