package kv

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/livetemplate/pagecraft/internal/cache"
	"github.com/livetemplate/pagecraft/internal/config"
)

// Open builds the Store named by cfg.Driver. Durable drivers are wrapped with a
// write breaker and, when cache_ttl is set, a read cache.
func Open(ctx context.Context, cfg config.StorageConfig, baseDir string, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store Store
		err   error
	)
	driver := cfg.GetDriver()
	switch driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		store, err = NewSQLiteStore(ctx, cfg.Path, cfg.Table, baseDir)
	case "postgres":
		store, err = NewPostgresStore(ctx, cfg.GetDSN(), cfg.Table)
	default:
		return nil, fmt.Errorf("kv: unsupported driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	store = WithBreaker(store, NewCircuitBreaker(driver, DefaultBreakerConfig(), logger.Named("kv")))
	if cfg.IsCacheEnabled() {
		store = WithCache(store, cache.NewMemoryCache(cfg.GetCacheTTL()), cfg.GetCacheTTL())
	}
	logger.Info("key-value store opened", zap.String("driver", driver), zap.Bool("cached", cfg.IsCacheEnabled()))
	return store, nil
}
