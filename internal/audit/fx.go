package audit

import (
	"github.com/partnerledger/core/internal/audit/repository"
	"github.com/partnerledger/core/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
