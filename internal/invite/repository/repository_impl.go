package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	invitedomain "github.com/partnerledger/core/internal/invite/domain"
	"github.com/partnerledger/core/internal/store"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(db *gorm.DB, genID *snowflake.Node) invitedomain.Repository {
	return &repo{db: db, genID: genID}
}

func (r *repo) FindByCode(ctx context.Context, code string) (*invitedomain.Invite, error) {
	var row store.Invite
	err := r.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDomain(row), nil
}

func (r *repo) ExpireIfPast(ctx context.Context, id snowflake.ID, now time.Time) error {
	return r.db.WithContext(ctx).Model(&store.Invite{}).
		Where("id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?", id, store.InviteStatusActive, now).
		Updates(map[string]any{"status": store.InviteStatusExpired, "updated_at": now}).Error
}

// ConsumeAtomic is the single predicate-guarded UPDATE that prevents
// concurrent consumers from exceeding max_uses: the status/use-count/expiry
// predicate and the increment are one statement.
func (r *repo) ConsumeAtomic(ctx context.Context, id snowflake.ID, now time.Time, usedBy snowflake.ID) (int64, error) {
	result := r.db.WithContext(ctx).Exec(
		`UPDATE invites SET
			use_count = use_count + 1,
			status = CASE WHEN use_count + 1 >= max_uses THEN ? ELSE status END,
			updated_at = ?
		 WHERE id = ? AND status = ? AND use_count < max_uses AND (expires_at IS NULL OR expires_at > ?)`,
		store.InviteStatusUsed, now, id, store.InviteStatusActive, now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) AppendUse(ctx context.Context, inviteID snowflake.ID, usedBy snowflake.ID, usedAt time.Time) error {
	row := store.InviteUse{
		ID:       r.genID.Generate(),
		InviteID: inviteID,
		UsedBy:   usedBy,
		UsedAt:   usedAt,
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *repo) Revoke(ctx context.Context, id snowflake.ID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&store.Invite{}).
		Where("id = ? AND status = ?", id, store.InviteStatusActive).
		Updates(map[string]any{"status": store.InviteStatusRevoked, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) IsUserActive(ctx context.Context, userID snowflake.ID) (bool, error) {
	var row store.User
	err := r.db.WithContext(ctx).Select("status").Where("id = ? AND deleted_at IS NULL", userID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return row.Status == store.UserStatusActive, nil
}

func (r *repo) FindActiveUserByCode(ctx context.Context, role invitedomain.Role, code string) (*snowflake.ID, *string, error) {
	var column string
	switch role {
	case invitedomain.RoleMediator, invitedomain.RoleAgency:
		column = "mediator_code"
	case invitedomain.RoleBrand:
		column = "brand_code"
	default:
		return nil, nil, nil
	}

	var row store.User
	err := r.db.WithContext(ctx).
		Where(column+" = ? AND status = ? AND deleted_at IS NULL", code, store.UserStatusActive).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &row.ID, row.ParentCode, nil
}

func toDomain(row store.Invite) *invitedomain.Invite {
	return &invitedomain.Invite{
		ID:           row.ID,
		Code:         row.Code,
		Role:         invitedomain.Role(row.Role),
		ParentCode:   row.ParentCode,
		ParentUserID: row.ParentUserID,
		CreatedBy:    row.CreatedBy,
		Status:       invitedomain.Status(row.Status),
		MaxUses:      row.MaxUses,
		UseCount:     row.UseCount,
		ExpiresAt:    row.ExpiresAt,
	}
}
