package wallet

import (
	"github.com/partnerledger/core/internal/wallet/repository"
	"github.com/partnerledger/core/internal/wallet/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wallet.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
