package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	invitedomain "github.com/partnerledger/core/internal/invite/domain"
	inviterepo "github.com/partnerledger/core/internal/invite/repository"
	inviteservice "github.com/partnerledger/core/internal/invite/service"
	"github.com/partnerledger/core/internal/store"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupInviteTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:invite_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&store.User{}, &store.Invite{}, &store.InviteUse{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newInviteService(t *testing.T, db *gorm.DB) invitedomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return inviteservice.NewService(inviteservice.Params{
		Log:  zap.NewNop(),
		Repo: inviterepo.Provide(db, node),
	})
}

func TestConsumeInviteSingleUseExhausts(t *testing.T) {
	ctx := context.Background()
	db := setupInviteTestDB(t)
	svc := newInviteService(t, db)

	issuer := store.User{ID: 100, Role: store.RoleMediator, Status: store.UserStatusActive, Mobile: "9000000001", PasswordHash: "x", Name: "issuer"}
	if err := db.Create(&issuer).Error; err != nil {
		t.Fatalf("seed issuer: %v", err)
	}
	invite := store.Invite{ID: 200, Code: "INVCODE1", Role: store.RoleBuyer, CreatedBy: issuer.ID, Status: store.InviteStatusActive, MaxUses: 1, UseCount: 0}
	if err := db.Create(&invite).Error; err != nil {
		t.Fatalf("seed invite: %v", err)
	}

	consumed, err := svc.ConsumeInvite(ctx, invitedomain.ConsumeInput{
		Code:         "INVCODE1",
		Role:         invitedomain.RoleBuyer,
		UsedByUserID: 300,
	})
	if err != nil {
		t.Fatalf("consume invite: %v", err)
	}
	if consumed.Status != invitedomain.StatusUsed {
		t.Fatalf("expected invite to be marked used, got %s", consumed.Status)
	}

	_, err = svc.ConsumeInvite(ctx, invitedomain.ConsumeInput{
		Code:         "INVCODE1",
		Role:         invitedomain.RoleBuyer,
		UsedByUserID: 301,
	})
	if err != invitedomain.ErrInvalidInvite {
		t.Fatalf("expected ErrInvalidInvite on exhausted invite, got %v", err)
	}
}

func TestConsumeInviteRoleMismatch(t *testing.T) {
	ctx := context.Background()
	db := setupInviteTestDB(t)
	svc := newInviteService(t, db)

	issuer := store.User{ID: 101, Role: store.RoleMediator, Status: store.UserStatusActive, Mobile: "9000000002", PasswordHash: "x", Name: "issuer"}
	if err := db.Create(&issuer).Error; err != nil {
		t.Fatalf("seed issuer: %v", err)
	}
	invite := store.Invite{ID: 201, Code: "INVCODE2", Role: store.RoleMediator, CreatedBy: issuer.ID, Status: store.InviteStatusActive, MaxUses: 1}
	if err := db.Create(&invite).Error; err != nil {
		t.Fatalf("seed invite: %v", err)
	}

	_, err := svc.ConsumeInvite(ctx, invitedomain.ConsumeInput{
		Code:         "INVCODE2",
		Role:         invitedomain.RoleBuyer,
		UsedByUserID: 302,
	})
	if err != invitedomain.ErrInviteRoleMismatch {
		t.Fatalf("expected ErrInviteRoleMismatch, got %v", err)
	}
}

func TestConsumeInviteRequiresActiveLineage(t *testing.T) {
	ctx := context.Background()
	db := setupInviteTestDB(t)
	svc := newInviteService(t, db)

	issuer := store.User{ID: 102, Role: store.RoleMediator, Status: store.UserStatusActive, Mobile: "9000000003", PasswordHash: "x", Name: "issuer"}
	if err := db.Create(&issuer).Error; err != nil {
		t.Fatalf("seed issuer: %v", err)
	}
	parentCode := "MED-404"
	invite := store.Invite{ID: 202, Code: "INVCODE3", Role: store.RoleBuyer, ParentCode: &parentCode, CreatedBy: issuer.ID, Status: store.InviteStatusActive, MaxUses: 1}
	if err := db.Create(&invite).Error; err != nil {
		t.Fatalf("seed invite: %v", err)
	}

	_, err := svc.ConsumeInvite(ctx, invitedomain.ConsumeInput{
		Code:                "INVCODE3",
		Role:                invitedomain.RoleBuyer,
		UsedByUserID:        303,
		RequireActiveIssuer: true,
	})
	if err != invitedomain.ErrInviteParentNotActive {
		t.Fatalf("expected ErrInviteParentNotActive for missing mediator, got %v", err)
	}
}

func TestRevokeInviteOnlyWhenActive(t *testing.T) {
	ctx := context.Background()
	db := setupInviteTestDB(t)
	svc := newInviteService(t, db)

	invite := store.Invite{ID: 203, Code: "INVCODE4", Role: store.RoleBuyer, CreatedBy: 1, Status: store.InviteStatusActive, MaxUses: 5}
	if err := db.Create(&invite).Error; err != nil {
		t.Fatalf("seed invite: %v", err)
	}

	if err := svc.RevokeInvite(ctx, invite.ID); err != nil {
		t.Fatalf("revoke invite: %v", err)
	}
	if err := svc.RevokeInvite(ctx, invite.ID); err != invitedomain.ErrInviteNotActive {
		t.Fatalf("expected ErrInviteNotActive on second revoke, got %v", err)
	}
}
