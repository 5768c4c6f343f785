package cli

import (
	"context"
	"time"

	"go.uber.org/zap"

	"stackhut-runner/config"
	"stackhut-runner/middleware"
	"stackhut-runner/models"
	"stackhut-runner/services"
)

// buildDeps connects the optional Redis and Postgres backends. A backend that
// cannot be reached is logged and left disabled; the task still runs.
func buildDeps(ctx context.Context, cfg *config.Config, desc *models.ServiceDescriptor, logger *zap.Logger) (services.RunnerDeps, func()) {
	deps := services.RunnerDeps{
		Config:     cfg,
		Descriptor: desc,
		HTTPClient: middleware.GetXRayHTTPClient(10 * time.Second),
	}
	var closers []func()

	if cfg.Redis.Addr != "" {
		redisService := services.NewRedisService(cfg.Redis)
		if err := redisService.Ping(ctx); err != nil {
			logger.Warn("Redis unavailable, completion notices disabled", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = redisService.Close()
		} else {
			deps.Redis = redisService
			closers = append(closers, func() { _ = redisService.Close() })
		}
	}

	if cfg.Database.DSN != "" {
		dbService, err := services.NewDBService(cfg.Database.DSN)
		if err != nil {
			logger.Warn("Database unavailable, run history disabled", zap.Error(err))
		} else if err := dbService.InitSchema(ctx); err != nil {
			logger.Warn("Failed to initialize database schema", zap.Error(err))
			_ = dbService.Close()
		} else {
			deps.DB = dbService
			closers = append(closers, func() { _ = dbService.Close() })
		}
	}

	return deps, func() {
		for _, c := range closers {
			c()
		}
	}
}
