package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/internal/auth/password"
	authzdomain "github.com/partnerledger/core/internal/authz/domain"
	"github.com/partnerledger/core/internal/authz/service"
	"github.com/partnerledger/core/internal/config"
	"github.com/partnerledger/core/internal/store"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupAuthzTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:authz_" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&store.User{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newHarness(t *testing.T) (authzdomain.Service, *gorm.DB) {
	t.Helper()
	db := setupAuthzTestDB(t)

	enforcer, err := service.NewEnforcer(db)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}

	cfg := config.Config{
		JWTAccessSecret:   "test-secret",
		MaxFailedAttempts: 3,
		LockoutDuration:   900,
	}

	svc := service.NewService(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Cfg:      cfg,
		Enforcer: enforcer,
	})
	return svc, db
}

func seedUser(t *testing.T, db *gorm.DB, role store.Role, mobile, username, plainPassword string) store.User {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	hash, err := password.Hash(plainPassword)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	var usernamePtr *string
	if username != "" {
		usernamePtr = &username
	}
	user := store.User{
		ID:           node.Generate(),
		Role:         role,
		Status:       store.UserStatusActive,
		Mobile:       mobile,
		Username:     usernamePtr,
		PasswordHash: hash,
		Name:         "Test User",
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func TestLoginSucceedsAndAuthorizesBuyer(t *testing.T) {
	ctx := context.Background()
	svc, db := newHarness(t)
	seedUser(t, db, store.RoleBuyer, "9000000001", "", "correcthorse")

	result, err := svc.Login(ctx, authzdomain.LoginInput{Identifier: "9000000001", Password: "correcthorse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.AccessToken == "" {
		t.Fatal("expected a non-empty access token")
	}

	requester, err := svc.ResolveRequester(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("resolve requester: %v", err)
	}
	if requester.Role != store.RoleBuyer {
		t.Fatalf("expected buyer role, got %s", requester.Role)
	}

	if err := svc.Authorize(ctx, *requester, service.ObjectOrder, service.ActionView); err != nil {
		t.Fatalf("buyer should be able to view orders: %v", err)
	}
	if err := svc.Authorize(ctx, *requester, service.ObjectSystemConfig, service.ActionAdmin); err != authzdomain.ErrForbidden {
		t.Fatalf("expected ErrForbidden for buyer admin system_config, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	svc, db := newHarness(t)
	seedUser(t, db, store.RoleBuyer, "9000000002", "", "correcthorse")

	_, err := svc.Login(ctx, authzdomain.LoginInput{Identifier: "9000000002", Password: "wrong"})
	if err != authzdomain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginLocksOutAfterMaxFailedAttempts(t *testing.T) {
	ctx := context.Background()
	svc, db := newHarness(t)
	seedUser(t, db, store.RoleBuyer, "9000000003", "", "correcthorse")

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, authzdomain.LoginInput{Identifier: "9000000003", Password: "wrong"})
		if err != authzdomain.ErrInvalidCredentials {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := svc.Login(ctx, authzdomain.LoginInput{Identifier: "9000000003", Password: "correcthorse"})
	if err != authzdomain.ErrAccountLocked {
		t.Fatalf("expected ErrAccountLocked once locked, got %v", err)
	}

	var user store.User
	if err := db.Where("mobile = ?", "9000000003").First(&user).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if user.LockoutUntil == nil || !user.LockoutUntil.After(time.Now()) {
		t.Fatal("expected lockout_until to be set in the future")
	}
}

func TestLoginClearsCounterOnSuccess(t *testing.T) {
	ctx := context.Background()
	svc, db := newHarness(t)
	seedUser(t, db, store.RoleBuyer, "9000000004", "", "correcthorse")

	_, _ = svc.Login(ctx, authzdomain.LoginInput{Identifier: "9000000004", Password: "wrong"})
	if _, err := svc.Login(ctx, authzdomain.LoginInput{Identifier: "9000000004", Password: "correcthorse"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	var user store.User
	if err := db.Where("mobile = ?", "9000000004").First(&user).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if user.FailedLoginAttempts != 0 {
		t.Fatalf("expected failed attempts cleared, got %d", user.FailedLoginAttempts)
	}
}

func TestPrivilegedLoginRequiresUsername(t *testing.T) {
	ctx := context.Background()
	svc, db := newHarness(t)
	seedUser(t, db, store.RoleAdmin, "9000000005", "admin1", "correcthorse")

	if _, err := svc.Login(ctx, authzdomain.LoginInput{Identifier: "9000000005", Password: "correcthorse"}); err != authzdomain.ErrUsernameRequired {
		t.Fatalf("expected ErrUsernameRequired for mobile-based admin login, got %v", err)
	}

	result, err := svc.Login(ctx, authzdomain.LoginInput{Identifier: "admin1", Password: "correcthorse", AsPrivileged: true})
	if err != nil {
		t.Fatalf("admin login by username: %v", err)
	}
	requester, err := svc.ResolveRequester(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("resolve requester: %v", err)
	}
	if !requester.IsPrivileged() {
		t.Fatal("expected admin requester to be privileged")
	}
	if err := svc.Authorize(ctx, *requester, service.ObjectSystemConfig, service.ActionAdmin); err != nil {
		t.Fatalf("admin should be able to administer system_config: %v", err)
	}
}

func TestResolveRequesterRejectsInvalidToken(t *testing.T) {
	ctx := context.Background()
	svc, _ := newHarness(t)
	if _, err := svc.ResolveRequester(ctx, "not-a-real-token"); err != authzdomain.ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
