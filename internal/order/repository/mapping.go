package repository

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/partnerledger/core/internal/order/domain"
	"github.com/partnerledger/core/internal/store"
	"gorm.io/datatypes"
)

func toStoreOrder(o *orderdomain.Order) *store.Order {
	status := o.WorkflowStatus
	if status == "" {
		status = orderdomain.WorkflowCreated
	}
	events := datatypes.JSON("[]")
	if len(o.Events) > 0 {
		if b, err := json.Marshal(o.Events); err == nil {
			events = datatypes.JSON(b)
		}
	}
	return &store.Order{
		UserID:          o.UserID,
		BrandUserID:     o.BrandUserID,
		TotalPaise:      o.TotalPaise,
		WorkflowStatus:  store.WorkflowStatus(status),
		Status:          store.OrderStatusOrdered,
		PaymentStatus:   store.PaymentStatusPending,
		AffiliateStatus: store.AffiliateStatusUnchecked,
		ExternalOrderID: o.ExternalOrderID,
		ManagerName:     o.ManagerName,
		AgencyName:      o.AgencyName,
		BuyerName:       o.BuyerName,
		BuyerMobile:     o.BuyerMobile,
		PreOrderID:      o.PreOrderID,
		Events:          events,
	}
}

func toStoreItem(item *orderdomain.Item, orderID snowflake.ID) *store.OrderItem {
	var dealType *store.DealType
	if item.DealType != nil {
		dt := store.DealType(*item.DealType)
		dealType = &dt
	}
	return &store.OrderItem{
		OrderID:              orderID,
		ProductID:            item.ProductID,
		Title:                item.Title,
		Image:                item.Image,
		PriceAtPurchasePaise: item.PriceAtPurchasePaise,
		CommissionPaise:      item.CommissionPaise,
		PayoutPaise:          item.PayoutPaise,
		CampaignID:           item.CampaignID,
		Quantity:             item.Quantity,
		DealType:             dealType,
		Platform:             item.Platform,
		BrandName:            item.BrandName,
	}
}

func toDomainOrder(row *store.Order, items []store.OrderItem) *orderdomain.Order {
	order := &orderdomain.Order{
		ID:              row.ID,
		UserID:          row.UserID,
		BrandUserID:     row.BrandUserID,
		TotalPaise:      row.TotalPaise,
		WorkflowStatus:  orderdomain.WorkflowStatus(row.WorkflowStatus),
		Status:          string(row.Status),
		PaymentStatus:   string(row.PaymentStatus),
		AffiliateStatus: string(row.AffiliateStatus),
		Frozen:          row.Frozen,
		FrozenReason:    row.FrozenReason,
		ExternalOrderID: row.ExternalOrderID,
		ManagerName:     row.ManagerName,
		AgencyName:      row.AgencyName,
		BuyerName:       row.BuyerName,
		BuyerMobile:     row.BuyerMobile,
		PreOrderID:      row.PreOrderID,
		CreatedAt:       row.CreatedAt,
	}

	if row.Verification != nil {
		order.Verification = decodeVerification(row.Verification)
	}
	if row.Rejection != nil {
		order.Rejection = map[string]any(row.Rejection)
	}
	if len(row.Events) > 0 {
		var events []orderdomain.Event
		if err := json.Unmarshal(row.Events, &events); err == nil {
			order.Events = events
		}
	}

	for _, item := range items {
		order.Items = append(order.Items, orderdomain.Item{
			ID:                   item.ID,
			ProductID:            item.ProductID,
			Title:                item.Title,
			Image:                item.Image,
			PriceAtPurchasePaise: item.PriceAtPurchasePaise,
			CommissionPaise:      item.CommissionPaise,
			PayoutPaise:          item.PayoutPaise,
			CampaignID:           item.CampaignID,
			Quantity:             item.Quantity,
			Platform:             item.Platform,
			BrandName:            item.BrandName,
			DealType:             dealTypeString(item.DealType),
		})
	}

	return order
}

func dealTypeString(dt *store.DealType) *string {
	if dt == nil {
		return nil
	}
	s := string(*dt)
	return &s
}

func decodeVerification(raw datatypes.JSONMap) map[string]orderdomain.VerificationStep {
	out := make(map[string]orderdomain.VerificationStep, len(raw))
	for key, value := range raw {
		step := orderdomain.VerificationStep{}
		obj, ok := value.(map[string]any)
		if !ok {
			out[key] = step
			continue
		}
		if at, ok := obj["verifiedAt"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, at); err == nil {
				step.VerifiedAt = &t
			}
		}
		if by, ok := obj["verifiedBy"].(string); ok {
			step.VerifiedBy = by
		}
		if av, ok := obj["autoVerified"].(bool); ok {
			step.AutoVerified = av
		}
		if conf, ok := obj["confidence"].(float64); ok {
			step.Confidence = int(conf)
		}
		out[key] = step
	}
	return out
}

func appendEvent(existing datatypes.JSON, next orderdomain.Event) (datatypes.JSON, error) {
	var events []orderdomain.Event
	if len(existing) > 0 {
		if err := json.Unmarshal(existing, &events); err != nil {
			return nil, err
		}
	}
	events = append(events, next)
	out, err := json.Marshal(events)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(out), nil
}
