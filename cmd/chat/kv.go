package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"roomchat/cache"
	"roomchat/config"
)

// openKV opens the configured cache backend. A backend that cannot be
// opened degrades to memory, so the client still works without a cache.
func openKV(cfg *config.ClientConfig, logger zerolog.Logger) (cache.KeyValue, func() error) {
	noop := func() error { return nil }

	switch cfg.CacheBackend {
	case config.CacheMemory:
		return cache.NewMemoryKV(), noop

	case config.CacheRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		kv := cache.NewRedisKV(rdb, cfg.RedisPrefix)

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := kv.Ping(ctx); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis cache unavailable, using memory")
			kv.Close()
			return cache.NewMemoryKV(), noop
		}
		return kv, kv.Close

	default:
		if cfg.CacheBackend != config.CacheSQLite {
			logger.Warn().Str("backend", cfg.CacheBackend).Msg("unknown cache backend, using sqlite")
		}
		kv, err := cache.OpenSQLite(cfg.CachePath)
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.CachePath).Msg("sqlite cache unavailable, using memory")
			return cache.NewMemoryKV(), noop
		}
		return kv, kv.Close
	}
}
