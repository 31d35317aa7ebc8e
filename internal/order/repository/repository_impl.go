package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/partnerledger/core/internal/order/domain"
	"github.com/partnerledger/core/internal/store"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func Provide(db *gorm.DB, genID *snowflake.Node) orderdomain.Repository {
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

func (r *repo) InsertOrder(ctx context.Context, tx *gorm.DB, order *orderdomain.Order) error {
	row := toStoreOrder(order)
	row.ID = r.genID.Generate()
	if err := r.conn(tx).WithContext(ctx).Create(row).Error; err != nil {
		return err
	}

	for i := range order.Items {
		itemRow := toStoreItem(&order.Items[i], row.ID)
		itemRow.ID = r.genID.Generate()
		if err := r.conn(tx).WithContext(ctx).Create(itemRow).Error; err != nil {
			return err
		}
		order.Items[i].ID = itemRow.ID
	}

	order.ID = row.ID
	order.WorkflowStatus = orderdomain.WorkflowStatus(row.WorkflowStatus)
	order.CreatedAt = row.CreatedAt
	return nil
}

func (r *repo) FindOrder(ctx context.Context, tx *gorm.DB, orderID snowflake.ID) (*orderdomain.Order, error) {
	var row store.Order
	err := r.conn(tx).WithContext(ctx).Where("id = ? AND deleted_at IS NULL", orderID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []store.OrderItem
	if err := r.conn(tx).WithContext(ctx).Where("order_id = ?", orderID).Find(&items).Error; err != nil {
		return nil, err
	}

	return toDomainOrder(&row, items), nil
}

func (r *repo) FindActiveOrderByExternalID(ctx context.Context, externalOrderID string) (*orderdomain.Order, error) {
	var row store.Order
	err := r.db.WithContext(ctx).Where("external_order_id = ? AND deleted_at IS NULL", externalOrderID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDomainOrder(&row, nil), nil
}

func (r *repo) FindNonTerminalOrderForBuyerProduct(ctx context.Context, buyerUserID snowflake.ID, productID string) (*orderdomain.Order, error) {
	var row store.Order
	err := r.db.WithContext(ctx).
		Select("orders.*").
		Joins("JOIN order_items ON order_items.order_id = orders.id").
		Where("orders.user_id = ? AND order_items.product_id = ? AND orders.deleted_at IS NULL AND orders.workflow_status NOT IN ?",
			buyerUserID, productID, terminalWorkflowStatuses(),
		).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toDomainOrder(&row, nil), nil
}

func (r *repo) CountOrdersSince(ctx context.Context, buyerUserID snowflake.ID, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&store.Order{}).
		Where("user_id = ? AND created_at >= ? AND deleted_at IS NULL", buyerUserID, since).
		Count(&count).Error
	return count, err
}

// TransitionWorkflow is the single conditional UPDATE guarding workflow moves: the
// workflowStatus=from guard and the append to the events log are one
// statement. A concurrent winner that changes workflowStatus first makes
// this statement affect zero rows, so a stale read of events never lands.
func (r *repo) TransitionWorkflow(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, from, to orderdomain.WorkflowStatus, event orderdomain.Event) (int64, error) {
	conn := r.conn(tx)

	var current store.Order
	if err := conn.WithContext(ctx).Select("events").Where("id = ?", orderID).Take(&current).Error; err != nil {
		return 0, err
	}

	events, err := appendEvent(current.Events, event)
	if err != nil {
		return 0, err
	}

	result := conn.WithContext(ctx).Exec(
		`UPDATE orders SET workflow_status = ?, events = ?, updated_at = ?
		 WHERE id = ? AND workflow_status = ? AND frozen = false AND deleted_at IS NULL`,
		string(to), events, time.Now().UTC(), orderID, string(from),
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) SetFrozen(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, frozen bool, reason *string, event orderdomain.Event) (int64, error) {
	conn := r.conn(tx)

	var current store.Order
	if err := conn.WithContext(ctx).Select("events").Where("id = ?", orderID).Take(&current).Error; err != nil {
		return 0, err
	}
	events, err := appendEvent(current.Events, event)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	if frozen {
		result := conn.WithContext(ctx).Exec(
			`UPDATE orders SET frozen = true, frozen_at = ?, frozen_reason = ?, events = ?, updated_at = ?
			 WHERE id = ? AND frozen = false AND deleted_at IS NULL`,
			now, reason, events, now, orderID,
		)
		if result.Error != nil {
			return 0, result.Error
		}
		return result.RowsAffected, nil
	}

	result := conn.WithContext(ctx).Exec(
		`UPDATE orders SET frozen = false, reactivated_at = ?, events = ?, updated_at = ?
		 WHERE id = ? AND frozen = true AND deleted_at IS NULL`,
		now, events, now, orderID,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) UpdateVerification(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, step orderdomain.ProofType, v orderdomain.VerificationStep) error {
	conn := r.conn(tx)

	var current store.Order
	if err := conn.WithContext(ctx).Select("verification").Where("id = ?", orderID).Take(&current).Error; err != nil {
		return err
	}

	verification := current.Verification
	if verification == nil {
		verification = datatypes.JSONMap{}
	}
	verification[string(step)] = map[string]any{
		"verifiedAt":   v.VerifiedAt,
		"verifiedBy":   v.VerifiedBy,
		"autoVerified": v.AutoVerified,
		"confidence":   v.Confidence,
	}

	return conn.WithContext(ctx).Model(&store.Order{}).Where("id = ?", orderID).
		Updates(map[string]any{"verification": verification, "updated_at": time.Now().UTC()}).Error
}

func terminalWorkflowStatuses() []string {
	return []string{
		string(store.WorkflowCompleted),
		string(store.WorkflowFailed),
		string(store.WorkflowRejected),
	}
}
