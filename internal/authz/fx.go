package authz

import (
	"github.com/partnerledger/core/internal/authz/service"
	"go.uber.org/fx"
)

var Module = fx.Module("authz.service",
	fx.Provide(service.NewEnforcer),
	fx.Provide(service.NewService),
)
