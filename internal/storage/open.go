// Package storage picks the slot backend named in the configuration.
package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/aeo-tracker/backend/internal/storage/redis"
	"github.com/aeo-tracker/backend/internal/storage/slots"
	"github.com/aeo-tracker/backend/internal/storage/sqlite"
	"github.com/aeo-tracker/backend/pkg/config"
	"github.com/aeo-tracker/backend/pkg/logger"
)

// Open connects the configured backend. The caller owns the returned
// backend and must Close it.
func Open(cfg *config.Config) (slots.Backend, error) {
	switch cfg.Storage.Driver {
	case "sqlite":
		client, err := sqlite.NewClient(cfg.SQLite.Path, cfg.Storage.MaxSlotBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite client: %w", err)
		}
		if err := client.InitSchema(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		logger.Info("Using SQLite slot backend", zap.String("path", cfg.SQLite.Path))
		return client, nil

	case "redis":
		client, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.KeyPrefix,
			cfg.Storage.MaxSlotBytes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		logger.Info("Using Redis slot backend",
			zap.String("host", cfg.Redis.Host),
			zap.Int("port", cfg.Redis.Port),
		)
		return client, nil

	case "memory":
		logger.Warn("Using in-memory slot backend, data is lost on exit")
		return slots.NewMemory(cfg.Storage.MaxSlotBytes), nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
