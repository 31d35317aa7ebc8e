package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/partnerledger/core/internal/order/domain"
	orderrepo "github.com/partnerledger/core/internal/order/repository"
	orderservice "github.com/partnerledger/core/internal/order/service"
	"github.com/partnerledger/core/internal/store"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupOrderTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:order_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&store.Order{}, &store.OrderItem{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newOrderService(t *testing.T, db *gorm.DB) orderdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return orderservice.NewService(orderservice.Params{
		Log:  zap.NewNop(),
		Repo: orderrepo.Provide(db, node),
	})
}

func baseInput(buyer snowflake.ID, productID string) orderdomain.CreateInput {
	return orderdomain.CreateInput{
		UserID:      buyer,
		BrandUserID: 1,
		BuyerName:   "buyer",
		BuyerMobile: "9000000000",
		Items: []orderdomain.Item{
			{ProductID: productID, Title: "p", PriceAtPurchasePaise: 1000, Quantity: 1},
		},
		Direct: true,
	}
}

func TestCreateOrderDirectStartsOrdered(t *testing.T) {
	ctx := context.Background()
	db := setupOrderTestDB(t)
	svc := newOrderService(t, db)

	order, err := svc.CreateOrder(ctx, baseInput(1, "p1"))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.WorkflowStatus != orderdomain.WorkflowOrdered {
		t.Fatalf("expected ORDERED, got %s", order.WorkflowStatus)
	}
}

func TestCreateOrderRejectsDuplicateExternalID(t *testing.T) {
	ctx := context.Background()
	db := setupOrderTestDB(t)
	svc := newOrderService(t, db)

	externalID := "ext-1"
	input := baseInput(1, "p1")
	input.ExternalOrderID = &externalID
	if _, err := svc.CreateOrder(ctx, input); err != nil {
		t.Fatalf("create order: %v", err)
	}

	input2 := baseInput(1, "p2")
	input2.ExternalOrderID = &externalID
	_, err := svc.CreateOrder(ctx, input2)
	if err != orderdomain.ErrDuplicateExternalID {
		t.Fatalf("expected ErrDuplicateExternalID, got %v", err)
	}
}

func TestCreateOrderRejectsDuplicateDealOrder(t *testing.T) {
	ctx := context.Background()
	db := setupOrderTestDB(t)
	svc := newOrderService(t, db)

	if _, err := svc.CreateOrder(ctx, baseInput(2, "same-product")); err != nil {
		t.Fatalf("create order: %v", err)
	}

	_, err := svc.CreateOrder(ctx, baseInput(2, "same-product"))
	if err != orderdomain.ErrDuplicateDealOrder {
		t.Fatalf("expected ErrDuplicateDealOrder, got %v", err)
	}
}

func TestCreateOrderVelocityLimit(t *testing.T) {
	ctx := context.Background()
	db := setupOrderTestDB(t)
	svc := newOrderService(t, db)

	for i := 0; i < orderdomain.VelocityHourlyLimit; i++ {
		input := baseInput(3, fmt.Sprintf("p-%d", i))
		if _, err := svc.CreateOrder(ctx, input); err != nil {
			t.Fatalf("create order %d: %v", i, err)
		}
	}

	_, err := svc.CreateOrder(ctx, baseInput(3, "p-overflow"))
	if err != orderdomain.ErrVelocityLimit {
		t.Fatalf("expected ErrVelocityLimit, got %v", err)
	}
}

func TestTransitionWorkflowRejectsStaleFrom(t *testing.T) {
	ctx := context.Background()
	db := setupOrderTestDB(t)
	svc := newOrderService(t, db)

	order, err := svc.CreateOrder(ctx, baseInput(4, "p4"))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	err = svc.TransitionWorkflow(ctx, orderdomain.TransitionInput{
		OrderID: order.ID, From: orderdomain.WorkflowCreated, To: orderdomain.WorkflowProofSubmitted,
	})
	if err != orderdomain.ErrInvalidWorkflowState {
		t.Fatalf("expected ErrInvalidWorkflowState, got %v", err)
	}
}

func TestSubmitProofAutoVerifiesAndApproves(t *testing.T) {
	ctx := context.Background()
	db := setupOrderTestDB(t)
	svc := newOrderService(t, db)

	input := baseInput(5, "p5")
	order, err := svc.CreateOrder(ctx, input)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	// No deal type set: only the order proof itself is required.
	if err := svc.SubmitProof(ctx, order.ID, orderdomain.ProofOrder, 95, nil); err != nil {
		t.Fatalf("submit order proof: %v", err)
	}

	var reloaded store.Order
	if err := db.Where("id = ?", order.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.WorkflowStatus != store.WorkflowApproved {
		t.Fatalf("expected APPROVED, got %s", reloaded.WorkflowStatus)
	}
}

func TestSubmitProofRejectsPrerequisite(t *testing.T) {
	ctx := context.Background()
	db := setupOrderTestDB(t)
	svc := newOrderService(t, db)

	input := baseInput(6, "p6")
	dealType := "Rating"
	input.Items[0].DealType = &dealType
	order, err := svc.CreateOrder(ctx, input)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	err = svc.SubmitProof(ctx, order.ID, orderdomain.ProofReturnWindow, 95, nil)
	if err != orderdomain.ErrRatingNotVerified {
		t.Fatalf("expected ErrRatingNotVerified, got %v", err)
	}
}

func TestFreezeBlocksTransitions(t *testing.T) {
	ctx := context.Background()
	db := setupOrderTestDB(t)
	svc := newOrderService(t, db)

	order, err := svc.CreateOrder(ctx, baseInput(7, "p7"))
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := svc.Freeze(ctx, order.ID, "fraud review", nil); err != nil {
		t.Fatalf("freeze: %v", err)
	}

	err = svc.TransitionWorkflow(ctx, orderdomain.TransitionInput{
		OrderID: order.ID, From: orderdomain.WorkflowOrdered, To: orderdomain.WorkflowProofSubmitted,
	})
	if err != orderdomain.ErrOrderFrozen {
		t.Fatalf("expected ErrOrderFrozen, got %v", err)
	}
}
