package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Assignment is one partner's slot allocation within a campaign.
type Assignment struct {
	Limit           int
	PayoutPaise     *int64
	CommissionPaise *int64
}

// Repository is the store-backed persistence surface for campaign slots.
type Repository interface {
	// ClaimSlot performs the single conditional UPDATE that enforces the
	// global cap; zero rows affected means sold out.
	ClaimSlot(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) (rowsAffected int64, err error)
	GetAssignments(ctx context.Context, campaignID snowflake.ID) (map[string]Assignment, error)
	CountActiveOrdersForPartner(ctx context.Context, campaignID snowflake.ID, mediatorCode string) (int64, error)
}

// Service implements campaign slot claiming.
type Service interface {
	// ClaimSlot atomically reserves one unit of campaign inventory and,
	// when mediatorCode names a partner with an assignment cap, advisorily
	// checks that partner's own cap before returning.
	ClaimSlot(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID, mediatorCode *string) error
	// GetAssignment looks up a single partner's slot assignment within a
	// campaign, returning nil when the partner has no assignment row.
	GetAssignment(ctx context.Context, campaignID snowflake.ID, mediatorCode string) (*Assignment, error)
}

var (
	ErrSoldOut            = errors.New("SOLD_OUT")
	ErrSoldOutForPartner  = errors.New("SOLD_OUT_FOR_PARTNER")
)
