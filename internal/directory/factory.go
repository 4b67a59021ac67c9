package directory

import (
	"context"

	"sharerelay/config"
	"sharerelay/util"
)

// Open builds the Store selected by cfg.Backend.  A SQLite failure is
// returned to the caller; an unreachable Redis falls back to memory.
func Open(ctx context.Context, cfg config.DirectoryConfig, logger *util.Logger) (Store, error) {
	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Infow("using SQLite directory", "path", cfg.SQLitePath)
		return s, nil

	case config.BackendRedis:
		s, err := NewRedisStore(ctx, RedisOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory directory",
				"error", err,
			)
			return NewMemoryStore(), nil
		}
		return s, nil
	}

	logger.Infow("using memory directory")
	return NewMemoryStore(), nil
}
