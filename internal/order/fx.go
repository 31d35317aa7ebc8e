package order

import (
	"github.com/partnerledger/core/internal/order/repository"
	"github.com/partnerledger/core/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
