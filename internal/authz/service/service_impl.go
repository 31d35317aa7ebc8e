// Package service implements the authorization resolver: bearer-token
// login/verification plus casbin-backed role gates.
package service

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/partnerledger/core/internal/auth/password"
	auditdomain "github.com/partnerledger/core/internal/audit/domain"
	authzdomain "github.com/partnerledger/core/internal/authz/domain"
	"github.com/partnerledger/core/internal/config"
	obsmetrics "github.com/partnerledger/core/internal/observability/metrics"
	"github.com/partnerledger/core/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const accessTokenTTL = 24 * time.Hour

const (
	ObjectOrder        = "order"
	ObjectWallet       = "wallet"
	ObjectCampaign     = "campaign"
	ObjectInvite       = "invite"
	ObjectSettlement   = "settlement"
	ObjectSystemConfig = "system_config"
	ObjectUser         = "user"

	ActionView   = "view"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionAdmin  = "admin"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	Enforcer   *casbin.SyncedEnforcer
	AuditSvc   auditdomain.Service `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        config.Config
	enforcer   *casbin.SyncedEnforcer
	auditSvc   auditdomain.Service
	obsMetrics *obsmetrics.Metrics
}

// NewEnforcer wires the casbin RBAC model onto the relational policy store
// and seeds the platform's fixed role/object/action catalog.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) authzdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("authz.service"),
		cfg:        p.Cfg,
		enforcer:   p.Enforcer,
		auditSvc:   p.AuditSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Login verifies an identifier/password pair and issues a bearer token.
// Privileged logins (admin/ops) must authenticate by username; every other
// role authenticates by mobile number.
func (s *Service) Login(ctx context.Context, input authzdomain.LoginInput) (authzdomain.LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" {
		return authzdomain.LoginResult{}, authzdomain.ErrInvalidCredentials
	}

	var user store.User
	var err error
	if input.AsPrivileged {
		err = s.db.WithContext(ctx).Where("username = ?", identifier).First(&user).Error
	} else {
		err = s.db.WithContext(ctx).Where("mobile = ?", identifier).First(&user).Error
	}
	if err != nil {
		return authzdomain.LoginResult{}, authzdomain.ErrInvalidCredentials
	}
	if input.AsPrivileged && !user.HasRole(store.RoleAdmin) && !user.HasRole(store.RoleOps) {
		return authzdomain.LoginResult{}, authzdomain.ErrUsernameRequired
	}
	if (user.Role == store.RoleAdmin || user.Role == store.RoleOps) && !input.AsPrivileged {
		return authzdomain.LoginResult{}, authzdomain.ErrUsernameRequired
	}

	if user.LockoutUntil != nil && time.Now().Before(*user.LockoutUntil) {
		s.recordLogin(ctx, "locked")
		if s.auditSvc != nil {
			s.auditSvc.AuditLog(ctx, user.ID.String(), "security.brute_force_detected", "user", user.ID.String(), nil, nil, nil)
		}
		return authzdomain.LoginResult{}, authzdomain.ErrAccountLocked
	}
	if user.Status != store.UserStatusActive {
		s.recordLogin(ctx, "suspended")
		return authzdomain.LoginResult{}, authzdomain.ErrAccountSuspended
	}

	if !password.Verify(input.Password, user.PasswordHash) {
		s.recordFailedAttempt(ctx, user)
		s.recordLogin(ctx, "invalid_credentials")
		return authzdomain.LoginResult{}, authzdomain.ErrInvalidCredentials
	}

	if err := s.clearFailedAttempts(ctx, user.ID); err != nil {
		s.log.Warn("clear failed login attempts", zap.Error(err))
	}

	token, err := s.issueToken(user)
	if err != nil {
		return authzdomain.LoginResult{}, err
	}
	s.recordLogin(ctx, "success")
	return authzdomain.LoginResult{AccessToken: token, UserID: user.ID, Role: user.Role}, nil
}

// recordFailedAttempt is the single conditional UPDATE that increments the
// failure counter and, on crossing the threshold, sets LockoutUntil. It
// never races a concurrent login for the same user: both would increment
// against the row's current value, and the DB serializes the two UPDATEs.
func (s *Service) recordFailedAttempt(ctx context.Context, user store.User) {
	wasLocked := user.LockoutUntil != nil && time.Now().Before(*user.LockoutUntil)

	maxAttempts := s.cfg.MaxFailedAttempts
	if maxAttempts <= 0 {
		maxAttempts = 7
	}
	lockoutFor := time.Duration(s.cfg.LockoutDuration) * time.Second
	if lockoutFor <= 0 {
		lockoutFor = 15 * time.Minute
	}
	updates := map[string]any{
		"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
		"lockout_until": gorm.Expr("CASE WHEN failed_login_attempts + 1 >= ? THEN ? ELSE lockout_until END",
			maxAttempts, time.Now().Add(lockoutFor)),
	}

	if err := s.db.WithContext(ctx).Model(&store.User{}).
		Where("id = ?", user.ID).
		Updates(updates).Error; err != nil {
		s.log.Warn("record failed login attempt", zap.Error(err))
	}

	if wasLocked && s.auditSvc != nil {
		s.auditSvc.AuditLog(ctx, user.ID.String(), "security.brute_force_detected", "user", user.ID.String(), nil, nil, nil)
	}
}

func (s *Service) clearFailedAttempts(ctx context.Context, userID snowflake.ID) error {
	return s.db.WithContext(ctx).Model(&store.User{}).
		Where("id = ? AND (failed_login_attempts <> 0 OR lockout_until IS NOT NULL)", userID).
		Updates(map[string]any{"failed_login_attempts": 0, "lockout_until": nil}).Error
}

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

func (s *Service) issueToken(user store.User) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
		Role: string(user.Role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString([]byte(s.cfg.JWTAccessSecret))
}

// ResolveRequester parses token and re-reads the user row live, so a
// suspended or role-changed account is rejected/reflected on the very next
// request rather than only once the token expires.
func (s *Service) ResolveRequester(ctx context.Context, token string) (*authzdomain.Requester, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, authzdomain.ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, authzdomain.ErrInvalidToken
		}
		return []byte(s.cfg.JWTAccessSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, authzdomain.ErrInvalidToken
	}
	c, ok := parsed.Claims.(*claims)
	if !ok {
		return nil, authzdomain.ErrInvalidToken
	}
	userID, err := snowflake.ParseString(c.Subject)
	if err != nil {
		return nil, authzdomain.ErrInvalidToken
	}

	var user store.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return nil, authzdomain.ErrUserNotFound
	}
	if user.Status != store.UserStatusActive {
		return nil, authzdomain.ErrAccountSuspended
	}

	return &authzdomain.Requester{
		UserID:       user.ID,
		Role:         user.Role,
		Roles:        user.RoleSet(),
		Status:       user.Status,
		MediatorCode: user.MediatorCode,
		ParentCode:   user.ParentCode,
		BrandCode:    user.BrandCode,
	}, nil
}

// Authorize checks the requester's role against the casbin policy for
// object/action. It does not make ownership/scope decisions (self-only,
// mediator-tree, brand-ownership): those are row-level checks the calling
// handler makes against the already-loaded entity, since casbin policy is
// role-shaped and has no notion of "this order's managerName".
func (s *Service) Authorize(ctx context.Context, requester authzdomain.Requester, object, action string) error {
	roleName := fmt.Sprintf("role:%s", requester.Role)
	allowed, err := s.enforcer.Enforce(roleName, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		if s.auditSvc != nil {
			s.auditSvc.AuditLog(ctx, requester.UserID.String(), "authorization.denied", object, action, nil, nil, nil)
		}
		return authzdomain.ErrForbidden
	}
	return nil
}

func (s *Service) recordLogin(ctx context.Context, result string) {
	if s.obsMetrics != nil {
		s.obsMetrics.RecordLoginAttempt(ctx, result)
	}
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:buyer", ObjectOrder, ActionView},
		{"role:buyer", ObjectOrder, ActionCreate},
		{"role:buyer", ObjectWallet, ActionView},

		{"role:mediator", ObjectOrder, ActionView},
		{"role:mediator", ObjectCampaign, ActionView},
		{"role:mediator", ObjectInvite, ActionCreate},
		{"role:mediator", ObjectWallet, ActionView},

		{"role:agency", ObjectOrder, ActionView},
		{"role:agency", ObjectCampaign, ActionView},
		{"role:agency", ObjectInvite, ActionCreate},
		{"role:agency", ObjectWallet, ActionView},

		{"role:brand", ObjectOrder, ActionView},
		{"role:brand", ObjectOrder, ActionUpdate},
		{"role:brand", ObjectCampaign, ActionCreate},
		{"role:brand", ObjectCampaign, ActionUpdate},
		{"role:brand", ObjectWallet, ActionView},

		{"role:admin", ObjectOrder, ActionView},
		{"role:admin", ObjectOrder, ActionUpdate},
		{"role:admin", ObjectOrder, ActionAdmin},
		{"role:admin", ObjectWallet, ActionView},
		{"role:admin", ObjectWallet, ActionAdmin},
		{"role:admin", ObjectCampaign, ActionView},
		{"role:admin", ObjectCampaign, ActionUpdate},
		{"role:admin", ObjectSettlement, ActionView},
		{"role:admin", ObjectSettlement, ActionAdmin},
		{"role:admin", ObjectSystemConfig, ActionAdmin},
		{"role:admin", ObjectUser, ActionAdmin},

		{"role:ops", ObjectOrder, ActionView},
		{"role:ops", ObjectOrder, ActionUpdate},
		{"role:ops", ObjectOrder, ActionAdmin},
		{"role:ops", ObjectWallet, ActionView},
		{"role:ops", ObjectWallet, ActionAdmin},
		{"role:ops", ObjectCampaign, ActionView},
		{"role:ops", ObjectSettlement, ActionView},
		{"role:ops", ObjectSettlement, ActionAdmin},
		{"role:ops", ObjectUser, ActionAdmin},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
