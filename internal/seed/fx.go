package seed

import (
	"github.com/bwmarrin/snowflake"
	"github.com/partnerledger/core/internal/config"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module runs the opt-in seeding stages after migrations and before the
// process starts accepting traffic (spec.md §4.11).
var Module = fx.Module("seed",
	fx.Invoke(func(db *gorm.DB, cfg config.Config, node *snowflake.Node) error {
		if err := EnsureAdmin(db, cfg, node); err != nil {
			return err
		}
		if err := EnsureE2EFixtures(db, cfg, node); err != nil {
			return err
		}
		return EnsureDevFixtures(db, cfg, node)
	}),
)
