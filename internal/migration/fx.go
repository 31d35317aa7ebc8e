package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Module applies the embedded schema migrations on startup. Safe to run on
// every boot; schema seeding (admin bootstrap, fixtures) is a separate,
// opt-in concern wired by cmd/* after this module runs.
var Module = fx.Module("migration",
	fx.Invoke(func(conn *gorm.DB) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
