package db

import (
	"context"
	"database/sql"

	"github.com/partnerledger/core/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	prometheus "gorm.io/plugin/prometheus"
)

// Module wires a *gorm.DB into the fx graph, following the teacher's own
// config/Dialect/IsDuplicateKeyErr split.
var Module = fx.Module("db",
	fx.Provide(Open),
)

func Open(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(Config{
		Type:     cfg.DBType,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}

	if cfg.DBType != "sqlite" {
		if err := gdb.Use(prometheus.New(prometheus.Config{
			DBName: cfg.DBName,
		})); err != nil {
			log.Warn("db prometheus plugin not installed", zap.Error(err))
		}
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(maxOr(cfg.DBMaxIdleConn, 5))
	sqlDB.SetMaxOpenConns(maxOr(cfg.DBMaxOpenConn, 25))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return closeDB(sqlDB)
		},
	})

	return gdb, nil
}

func closeDB(sqlDB *sql.DB) error {
	if sqlDB == nil {
		return nil
	}
	return sqlDB.Close()
}

func maxOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}
