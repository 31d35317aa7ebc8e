// Command worker is the background process: it runs the availability
// monitor (and any future periodic reconciliation) without binding an
// HTTP port, so it scales independently of the request-serving api
// process (spec.md §4.11).
package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/internal/config"
	"github.com/partnerledger/core/internal/observability"
	"github.com/partnerledger/core/internal/scheduler"
	"github.com/partnerledger/core/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(func() (*snowflake.Node, error) {
			return snowflake.NewNode(2)
		}),
		db.Module,

		scheduler.Module,
	)
	app.Run()
}
