// Package httpserver is the thin HTTP glue that fronts the core: a
// liveness probe and the Prometheus scrape endpoint. Routing the
// platform's actual REST surface onto C6/C9 is an external collaborator's
// concern (spec.md §1 Non-goals); this package only gives operators
// something to point a load balancer and a scraper at.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/partnerledger/core/internal/config"
	"github.com/partnerledger/core/internal/observability"
	obslogger "github.com/partnerledger/core/internal/observability/logger"
	obsmetrics "github.com/partnerledger/core/internal/observability/metrics"
	obstracing "github.com/partnerledger/core/internal/observability/tracing"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the gin engine and its *http.Server lifecycle hooks.
var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if obsCfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{Debug: obsCfg.Debug()}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, engine *gin.Engine) {
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped unexpectedly", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			drain := time.Duration(cfg.DrainTimeoutSeconds) * time.Second
			if drain <= 0 {
				drain = 30 * time.Second
			}
			shutdownCtx, cancel := context.WithTimeout(ctx, drain)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
