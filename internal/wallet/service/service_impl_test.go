package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/internal/config"
	"github.com/partnerledger/core/internal/store"
	walletdomain "github.com/partnerledger/core/internal/wallet/domain"
	walletrepo "github.com/partnerledger/core/internal/wallet/repository"
	walletservice "github.com/partnerledger/core/internal/wallet/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupWalletTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:wallet_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&store.Wallet{}, &store.Transaction{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newWalletService(t *testing.T, db *gorm.DB, maxBalance int64) walletdomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	holder, err := config.NewSystemConfigHolder(config.Config{WalletMaxBalancePaise: maxBalance})
	if err != nil {
		t.Fatalf("new system config holder: %v", err)
	}
	return walletservice.NewService(walletservice.Params{
		Log:        zap.NewNop(),
		Repo:       walletrepo.Provide(db, node),
		ConfigHold: holder,
	})
}

func TestApplyWalletCreditIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupWalletTestDB(t)
	svc := newWalletService(t, db, 100_000_00)

	owner := snowflake.ID(1001)
	input := walletdomain.MutationInput{
		IdempotencyKey: "credit:order:1",
		Type:           walletdomain.TxnBrandDeposit,
		OwnerUserID:    owner,
		AmountPaise:    5000,
	}

	first, err := svc.ApplyWalletCredit(ctx, input)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}

	second, err := svc.ApplyWalletCredit(ctx, input)
	if err != nil {
		t.Fatalf("second credit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same transaction on replay, got %v and %v", first.ID, second.ID)
	}

	wallet, err := svc.EnsureWallet(ctx, owner)
	if err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}
	if wallet.AvailablePaise != 5000 {
		t.Fatalf("expected balance 5000, got %d", wallet.AvailablePaise)
	}
}

func TestApplyWalletCreditRejectsOverCeiling(t *testing.T) {
	ctx := context.Background()
	db := setupWalletTestDB(t)
	svc := newWalletService(t, db, 1000)

	owner := snowflake.ID(2002)
	if _, err := svc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
		IdempotencyKey: "credit:a",
		Type:           walletdomain.TxnBrandDeposit,
		OwnerUserID:    owner,
		AmountPaise:    1000,
	}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	_, err := svc.ApplyWalletCredit(ctx, walletdomain.MutationInput{
		IdempotencyKey: "credit:b",
		Type:           walletdomain.TxnBrandDeposit,
		OwnerUserID:    owner,
		AmountPaise:    1,
	})
	if err != walletdomain.ErrBalanceLimitExceeded {
		t.Fatalf("expected ErrBalanceLimitExceeded, got %v", err)
	}
}

func TestApplyWalletDebitRejectsInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	db := setupWalletTestDB(t)
	svc := newWalletService(t, db, 100_000_00)

	owner := snowflake.ID(3003)
	if _, err := svc.EnsureWallet(ctx, owner); err != nil {
		t.Fatalf("ensure wallet: %v", err)
	}

	_, err := svc.ApplyWalletDebit(ctx, walletdomain.MutationInput{
		IdempotencyKey: "debit:a",
		Type:           walletdomain.TxnOrderSettlementDebit,
		OwnerUserID:    owner,
		AmountPaise:    100,
	})
	if err != walletdomain.ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestApplyWalletDebitRejectsInvalidAmount(t *testing.T) {
	ctx := context.Background()
	db := setupWalletTestDB(t)
	svc := newWalletService(t, db, 100_000_00)

	_, err := svc.ApplyWalletDebit(ctx, walletdomain.MutationInput{
		IdempotencyKey: "debit:zero",
		Type:           walletdomain.TxnOrderSettlementDebit,
		OwnerUserID:    snowflake.ID(4004),
		AmountPaise:    0,
	})
	if err != walletdomain.ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}
