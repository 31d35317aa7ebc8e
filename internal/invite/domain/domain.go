package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
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

type Status string

const (
	StatusActive  Status = "active"
	StatusUsed    Status = "used"
	StatusRevoked Status = "revoked"
	StatusExpired Status = "expired"
)

// Use is one append-only row of an invite's uses[] log.
type Use struct {
	UsedBy snowflake.ID
	UsedAt time.Time
}

// Invite is the domain-facing view of store.Invite.
type Invite struct {
	ID           snowflake.ID
	Code         string
	Role         Role
	ParentCode   *string
	ParentUserID *snowflake.ID
	CreatedBy    snowflake.ID
	Status       Status
	MaxUses      int
	UseCount     int
	ExpiresAt    *time.Time
}

type ConsumeInput struct {
	Code              string
	Role              Role
	UsedByUserID      snowflake.ID
	RequireActiveIssuer bool
}

// Repository persists invites and their lineage-check dependencies.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Invite, error)
	ExpireIfPast(ctx context.Context, id snowflake.ID, now time.Time) error
	ConsumeAtomic(ctx context.Context, id snowflake.ID, now time.Time, usedBy snowflake.ID) (rowsAffected int64, err error)
	AppendUse(ctx context.Context, inviteID snowflake.ID, usedBy snowflake.ID, usedAt time.Time) error
	Revoke(ctx context.Context, id snowflake.ID) (rowsAffected int64, err error)
	IsUserActive(ctx context.Context, userID snowflake.ID) (bool, error)
	// FindActiveUserByCode returns the id and parentCode of the active user
	// holding the given role and code, or a nil id when there is none.
	FindActiveUserByCode(ctx context.Context, role Role, code string) (*snowflake.ID, *string, error)
}

// Service implements consumeInvite/revokeInvite.
type Service interface {
	ConsumeInvite(ctx context.Context, input ConsumeInput) (*Invite, error)
	RevokeInvite(ctx context.Context, id snowflake.ID) error
}

var (
	ErrInvalidInvite          = errors.New("INVALID_INVITE")
	ErrInviteRoleMismatch     = errors.New("INVITE_ROLE_MISMATCH")
	ErrInviteExpired          = errors.New("INVITE_EXPIRED")
	ErrInviteParentNotActive  = errors.New("INVITE_PARENT_NOT_ACTIVE")
	ErrInviteUpstreamNotActive = errors.New("INVITE_UPSTREAM_NOT_ACTIVE")
	ErrInviteNotActive        = errors.New("INVITE_NOT_ACTIVE")
)
