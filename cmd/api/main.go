// Command api is the platform's HTTP-facing process: it applies
// migrations, runs the opt-in seed stages, then serves traffic until a
// bounded-drain shutdown (spec.md §4.11).
package main

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/internal/audit"
	"github.com/partnerledger/core/internal/authz"
	"github.com/partnerledger/core/internal/campaign"
	"github.com/partnerledger/core/internal/config"
	"github.com/partnerledger/core/internal/httpserver"
	"github.com/partnerledger/core/internal/invite"
	"github.com/partnerledger/core/internal/migration"
	"github.com/partnerledger/core/internal/observability"
	"github.com/partnerledger/core/internal/order"
	"github.com/partnerledger/core/internal/realtime"
	"github.com/partnerledger/core/internal/scheduler"
	"github.com/partnerledger/core/internal/seed"
	"github.com/partnerledger/core/internal/settlement"
	"github.com/partnerledger/core/internal/wallet"
	"github.com/partnerledger/core/pkg/db"
	"go.uber.org/fx"
)

func main() {
	cfg := config.Load()

	app := fx.New(
		fx.StopTimeout(drainTimeout(cfg)),

		config.Module,
		observability.Module,
		fx.Provide(newNode),
		db.Module,

		audit.Module,
		wallet.Module,
		campaign.Module,
		invite.Module,
		order.Module,
		settlement.Module,
		realtime.Module,
		authz.Module,

		migration.Module,
		seed.Module,

		scheduler.Module,
		httpserver.Module,
	)
	app.Run()
}

func newNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

func drainTimeout(cfg config.Config) time.Duration {
	if cfg.DrainTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(cfg.DrainTimeoutSeconds) * time.Second
}
