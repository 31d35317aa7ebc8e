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
	settlementdomain "github.com/partnerledger/core/internal/settlement/domain"
	settlementrepo "github.com/partnerledger/core/internal/settlement/repository"
	settlementservice "github.com/partnerledger/core/internal/settlement/service"
	"github.com/partnerledger/core/internal/store"
	walletdomain "github.com/partnerledger/core/internal/wallet/domain"
	walletrepo "github.com/partnerledger/core/internal/wallet/repository"
	walletservice "github.com/partnerledger/core/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/partnerledger/core/internal/config"
)

func setupSettlementTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:settlement_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&store.Order{}, &store.OrderItem{},
		&store.Wallet{}, &store.Transaction{},
		&store.User{}, &store.Ticket{}, &store.Payout{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

type harness struct {
	db          *gorm.DB
	orderSvc    orderdomain.Service
	walletSvc   walletdomain.Service
	settleSvc   settlementdomain.Service
	buyer       snowflake.ID
	brand       snowflake.ID
	mediator    snowflake.ID
	mediatorCd  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := setupSettlementTestDB(t)
	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	orderSvc := orderservice.NewService(orderservice.Params{
		Log:  zap.NewNop(),
		Repo: orderrepo.Provide(db, node),
	})

	holder, err := config.NewSystemConfigHolder(config.Config{WalletMaxBalancePaise: 100_000_000_00})
	if err != nil {
		t.Fatalf("new system config holder: %v", err)
	}
	walletSvc := walletservice.NewService(walletservice.Params{
		Log:        zap.NewNop(),
		Repo:       walletrepo.Provide(db, node),
		ConfigHold: holder,
	})

	settleSvc := settlementservice.NewService(settlementservice.Params{
		Log:       zap.NewNop(),
		Repo:      settlementrepo.Provide(db, node),
		OrderSvc:  orderSvc,
		OrderRepo: orderrepo.Provide(db, node),
		WalletSvc: walletSvc,
	})

	h := &harness{
		db:         db,
		orderSvc:   orderSvc,
		walletSvc:  walletSvc,
		settleSvc:  settleSvc,
		buyer:      snowflake.ID(1001),
		brand:      snowflake.ID(2002),
		mediator:   snowflake.ID(3003),
		mediatorCd: "MED-001",
	}

	for _, u := range []store.User{
		{ID: h.buyer, Role: store.RoleBuyer, Status: store.UserStatusActive, Mobile: "9000000001", PasswordHash: "x", Name: "buyer"},
		{ID: h.brand, Role: store.RoleBrand, Status: store.UserStatusActive, Mobile: "9000000002", PasswordHash: "x", Name: "brand"},
		{ID: h.mediator, Role: store.RoleMediator, Status: store.UserStatusActive, Mobile: "9000000003", PasswordHash: "x", Name: "mediator", MediatorCode: &h.mediatorCd},
	} {
		if err := db.Create(&u).Error; err != nil {
			t.Fatalf("seed user %d: %v", u.ID, err)
		}
	}

	if _, err := walletSvc.ApplyWalletCredit(context.Background(), walletdomain.MutationInput{
		IdempotencyKey: "seed:brand",
		Type:           walletdomain.TxnBrandDeposit,
		OwnerUserID:    h.brand,
		AmountPaise:    1_000_00,
	}); err != nil {
		t.Fatalf("seed brand wallet: %v", err)
	}

	return h
}

func (h *harness) createApprovedOrder(t *testing.T, productID string) *orderdomain.Order {
	t.Helper()
	ctx := context.Background()
	dealType := "Rating"
	order, err := h.orderSvc.CreateOrder(ctx, orderdomain.CreateInput{
		UserID:      h.buyer,
		BrandUserID: h.brand,
		ManagerName: &h.mediatorCd,
		BuyerName:   "buyer",
		BuyerMobile: "9000000001",
		Items: []orderdomain.Item{
			{ProductID: productID, Title: "p", PriceAtPurchasePaise: 10000, CommissionPaise: 1000, PayoutPaise: 500, Quantity: 1, DealType: &dealType},
		},
		Direct: true,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if err := h.orderSvc.SubmitProof(ctx, order.ID, orderdomain.ProofOrder, 95, nil); err != nil {
		t.Fatalf("submit order proof: %v", err)
	}
	if err := h.orderSvc.SubmitProof(ctx, order.ID, orderdomain.ProofRating, 95, nil); err != nil {
		t.Fatalf("submit rating proof: %v", err)
	}
	if err := h.orderSvc.SubmitProof(ctx, order.ID, orderdomain.ProofReturnWindow, 95, nil); err != nil {
		t.Fatalf("submit return window proof: %v", err)
	}

	var reloaded store.Order
	if err := h.db.Where("id = ?", order.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.WorkflowStatus != store.WorkflowApproved {
		t.Fatalf("expected order APPROVED, got %s", reloaded.WorkflowStatus)
	}
	order.ID = reloaded.ID
	return order
}

func walletBalance(t *testing.T, db *gorm.DB, owner snowflake.ID) int64 {
	t.Helper()
	var wallet store.Wallet
	if err := db.Where("owner_user_id = ?", owner).Take(&wallet).Error; err != nil {
		t.Fatalf("load wallet for %d: %v", owner, err)
	}
	return wallet.AvailablePaise
}

func TestSettleMovesWalletsAndOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order := h.createApprovedOrder(t, "p1")

	if err := h.settleSvc.Settle(ctx, order.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if got := walletBalance(t, h.db, h.brand); got != 1_000_00-10000 {
		t.Fatalf("expected brand balance %d, got %d", 1_000_00-10000, got)
	}
	if got := walletBalance(t, h.db, h.buyer); got != 500 {
		t.Fatalf("expected buyer balance 500, got %d", got)
	}
	if got := walletBalance(t, h.db, h.mediator); got != 1000 {
		t.Fatalf("expected mediator balance 1000, got %d", got)
	}

	var reloaded store.Order
	if err := h.db.Where("id = ?", order.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.AffiliateStatus != store.AffiliateStatusApprovedSettled {
		t.Fatalf("expected Approved_Settled, got %s", reloaded.AffiliateStatus)
	}
	if reloaded.WorkflowStatus != store.WorkflowRewardPending {
		t.Fatalf("expected REWARD_PENDING, got %s", reloaded.WorkflowStatus)
	}
}

func TestSettleIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order := h.createApprovedOrder(t, "p2")

	if err := h.settleSvc.Settle(ctx, order.ID); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	if err := h.settleSvc.Settle(ctx, order.ID); err != nil {
		t.Fatalf("second settle: %v", err)
	}

	if got := walletBalance(t, h.db, h.buyer); got != 500 {
		t.Fatalf("expected buyer balance unchanged at 500 after replay, got %d", got)
	}
	if got := walletBalance(t, h.db, h.mediator); got != 1000 {
		t.Fatalf("expected mediator balance unchanged at 1000 after replay, got %d", got)
	}
}

func TestSettleFreezesOnOpenDispute(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order := h.createApprovedOrder(t, "p3")

	if err := h.db.Create(&store.Ticket{
		ID:       snowflake.ID(99001),
		OrderID:  &order.ID,
		RaisedBy: h.buyer,
		Subject:  "damaged item",
		Status:   store.TicketStatusOpen,
	}).Error; err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	err := h.settleSvc.Settle(ctx, order.ID)
	if err != settlementdomain.ErrBuyerFrozenDispute {
		t.Fatalf("expected ErrBuyerFrozenDispute, got %v", err)
	}

	var reloaded store.Order
	if err := h.db.Where("id = ?", order.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if !reloaded.Frozen || reloaded.AffiliateStatus != store.AffiliateStatusFrozenDisputed {
		t.Fatalf("expected order frozen with Frozen_Disputed status, got frozen=%v status=%s", reloaded.Frozen, reloaded.AffiliateStatus)
	}
}

func TestUnsettleReversesWalletsAndOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order := h.createApprovedOrder(t, "p4")
	if err := h.settleSvc.Settle(ctx, order.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	if err := h.settleSvc.Unsettle(ctx, order.ID, nil); err != nil {
		t.Fatalf("unsettle: %v", err)
	}

	if got := walletBalance(t, h.db, h.brand); got != 1_000_00 {
		t.Fatalf("expected brand balance restored to %d, got %d", 1_000_00, got)
	}
	if got := walletBalance(t, h.db, h.buyer); got != 0 {
		t.Fatalf("expected buyer balance clawed back to 0, got %d", got)
	}
	if got := walletBalance(t, h.db, h.mediator); got != 0 {
		t.Fatalf("expected mediator balance clawed back to 0, got %d", got)
	}

	var reloaded store.Order
	if err := h.db.Where("id = ?", order.ID).Take(&reloaded).Error; err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if reloaded.AffiliateStatus == store.AffiliateStatusApprovedSettled {
		t.Fatalf("expected affiliateStatus to move off Approved_Settled after unsettle")
	}
}

func TestUnsettleRejectsUnsettledOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	order := h.createApprovedOrder(t, "p5")

	err := h.settleSvc.Unsettle(ctx, order.ID, nil)
	if err != settlementdomain.ErrOrderNotSettled {
		t.Fatalf("expected ErrOrderNotSettled, got %v", err)
	}
}

func TestPayoutRequestAndSuccessCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.walletSvc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
		IdempotencyKey: "seed:mediator-payout",
		Type:           walletdomain.TxnCommissionSettle,
		OwnerUserID:    h.mediator,
		AmountPaise:    2000,
	}); err != nil {
		t.Fatalf("seed mediator wallet: %v", err)
	}

	payout, err := h.settleSvc.RequestPayout(ctx, settlementdomain.PayoutRequestInput{
		UserID:         h.mediator,
		AmountPaise:    2000,
		IdempotencyKey: "payout:req:1",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}
	if got := walletBalance(t, h.db, h.mediator); got != 0 {
		t.Fatalf("expected mediator balance 0 after payout debit, got %d", got)
	}

	err = h.settleSvc.HandleProviderCallback(ctx, settlementdomain.ProviderCallbackInput{
		PayoutID:    payout.ID,
		Provider:    "razorpay",
		ProviderRef: "ref-1",
		Success:     true,
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}

	reloaded, err := settlementrepo.Provide(h.db, mustNode(t)).FindPayout(ctx, payout.ID)
	if err != nil {
		t.Fatalf("find payout: %v", err)
	}
	if reloaded.Status != settlementdomain.PayoutPaid {
		t.Fatalf("expected payout paid, got %s", reloaded.Status)
	}
}

func TestPayoutFailureCallbackCreditsWalletBack(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.walletSvc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
		IdempotencyKey: "seed:mediator-payout-2",
		Type:           walletdomain.TxnCommissionSettle,
		OwnerUserID:    h.mediator,
		AmountPaise:    1500,
	}); err != nil {
		t.Fatalf("seed mediator wallet: %v", err)
	}

	payout, err := h.settleSvc.RequestPayout(ctx, settlementdomain.PayoutRequestInput{
		UserID:         h.mediator,
		AmountPaise:    1500,
		IdempotencyKey: "payout:req:2",
	})
	if err != nil {
		t.Fatalf("request payout: %v", err)
	}

	err = h.settleSvc.HandleProviderCallback(ctx, settlementdomain.ProviderCallbackInput{
		PayoutID:    payout.ID,
		Provider:    "razorpay",
		ProviderRef: "ref-2",
		Success:     false,
	})
	if err != nil {
		t.Fatalf("callback: %v", err)
	}

	if got := walletBalance(t, h.db, h.mediator); got != 1500 {
		t.Fatalf("expected mediator balance restored to 1500 after failed payout, got %d", got)
	}
}

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(8)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}
