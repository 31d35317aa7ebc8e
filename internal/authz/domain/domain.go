// Package domain declares the authorization resolver's requester model,
// the role gates each service call is checked against, and the service
// contract the HTTP layer drives for login and bearer-token resolution.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/internal/store"
)

// Requester is the live, per-request view of the authenticated actor: a
// fresh re-read of the user row, not a claim cached from the token. Scoping
// decisions (mediator-tree, brand-ownership) are made against these fields.
type Requester struct {
	UserID       snowflake.ID
	Role         store.Role
	Roles        []store.Role
	Status       store.UserStatus
	MediatorCode *string
	ParentCode   *string
	BrandCode    *string
}

// HasRole reports whether role is among the requester's role set.
func (r Requester) HasRole(role store.Role) bool {
	if r.Role == role {
		return true
	}
	for _, candidate := range r.Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// IsPrivileged reports whether the requester carries admin or ops, the two
// roles exempt from ownership/scope checks.
func (r Requester) IsPrivileged() bool {
	return r.HasRole(store.RoleAdmin) || r.HasRole(store.RoleOps)
}

// LoginInput is one authentication attempt. Identifier is a mobile number
// for buyer/mediator/agency/brand logins, or a username for admin/ops.
type LoginInput struct {
	Identifier  string
	Password    string
	AsPrivileged bool
}

// LoginResult is returned on a successful authentication.
type LoginResult struct {
	AccessToken string
	UserID      snowflake.ID
	Role        store.Role
}

// Service is the authentication/authorization resolver: it turns a login
// attempt into a bearer token, and a bearer token back into a live
// Requester on every subsequent request.
type Service interface {
	Login(ctx context.Context, input LoginInput) (LoginResult, error)
	ResolveRequester(ctx context.Context, token string) (*Requester, error)
	Authorize(ctx context.Context, requester Requester, object, action string) error
}

var (
	ErrInvalidCredentials = errors.New("INVALID_CREDENTIALS")
	ErrAccountLocked      = errors.New("ACCOUNT_LOCKED")
	ErrAccountSuspended   = errors.New("ACCOUNT_SUSPENDED")
	ErrUsernameRequired   = errors.New("USERNAME_REQUIRED")
	ErrInvalidToken       = errors.New("INVALID_TOKEN")
	ErrUserNotFound       = errors.New("USER_NOT_FOUND")
	ErrForbidden          = errors.New("FORBIDDEN")
)
