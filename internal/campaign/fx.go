package campaign

import (
	"github.com/partnerledger/core/internal/campaign/repository"
	"github.com/partnerledger/core/internal/campaign/service"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
