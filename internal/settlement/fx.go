package settlement

import (
	"github.com/partnerledger/core/internal/settlement/repository"
	"github.com/partnerledger/core/internal/settlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("settlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
