package invite

import (
	"github.com/partnerledger/core/internal/invite/repository"
	"github.com/partnerledger/core/internal/invite/service"
	"go.uber.org/fx"
)

var Module = fx.Module("invite.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
