package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	campaigndomain "github.com/partnerledger/core/internal/campaign/domain"
	"github.com/partnerledger/core/internal/store"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) campaigndomain.Repository {
	return &repo{db: db}
}

func (r *repo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// ClaimSlot is the single conditional SQL UPDATE guarding slot claims: the
// global usedSlots<totalSlots check and the increment are one statement.
func (r *repo) ClaimSlot(ctx context.Context, tx *gorm.DB, campaignID snowflake.ID) (int64, error) {
	result := r.conn(tx).WithContext(ctx).Exec(
		`UPDATE campaigns SET used_slots = used_slots + 1, updated_at = ?
		 WHERE id = ? AND used_slots < total_slots AND deleted_at IS NULL`,
		time.Now().UTC(), campaignID,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) GetAssignments(ctx context.Context, campaignID snowflake.ID) (map[string]campaigndomain.Assignment, error) {
	var row store.Campaign
	err := r.db.WithContext(ctx).Select("assignments").Where("id = ?", campaignID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]campaigndomain.Assignment, len(row.Assignments))
	for code, raw := range row.Assignments {
		out[code] = decodeAssignment(raw)
	}
	return out, nil
}

func decodeAssignment(raw any) campaigndomain.Assignment {
	switch v := raw.(type) {
	case float64:
		return campaigndomain.Assignment{Limit: int(v)}
	case int:
		return campaigndomain.Assignment{Limit: v}
	case map[string]any:
		a := campaigndomain.Assignment{}
		if limit, ok := v["limit"].(float64); ok {
			a.Limit = int(limit)
		}
		if payout, ok := v["payout"].(float64); ok {
			p := int64(payout)
			a.PayoutPaise = &p
		}
		if commission, ok := v["commissionPaise"].(float64); ok {
			c := int64(commission)
			a.CommissionPaise = &c
		}
		return a
	default:
		return campaigndomain.Assignment{}
	}
}

// CountActiveOrdersForPartner counts non-cancelled orders a mediator manages
// against this campaign, via the order's line items.
func (r *repo) CountActiveOrdersForPartner(ctx context.Context, campaignID snowflake.ID, mediatorCode string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Table("orders").
		Joins("JOIN order_items ON order_items.order_id = orders.id").
		Where("order_items.campaign_id = ? AND orders.manager_name = ? AND orders.status <> ? AND orders.deleted_at IS NULL",
			campaignID, mediatorCode, store.OrderStatusCancelled,
		).
		Distinct("orders.id").
		Count(&count).Error
	return count, err
}
