package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/cache"
	"roomchat/config"
)

func TestOpenKV(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		cfg  config.ClientConfig
		want any
	}{
		{"memory", config.ClientConfig{CacheBackend: config.CacheMemory}, &cache.MemoryKV{}},
		{"sqlite", config.ClientConfig{CacheBackend: config.CacheSQLite, CachePath: filepath.Join(dir, "a", "cache.db")}, &cache.SQLiteKV{}},
		{"unknown defaults to sqlite", config.ClientConfig{CacheBackend: "floppy", CachePath: filepath.Join(dir, "b.db")}, &cache.SQLiteKV{}},
		{"unreachable redis degrades", config.ClientConfig{CacheBackend: config.CacheRedis, RedisAddr: "127.0.0.1:1"}, &cache.MemoryKV{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, closeKV := openKV(&tt.cfg, zerolog.Nop())
			defer closeKV()

			assert.IsType(t, tt.want, kv)

			ctx := context.Background()
			require.NoError(t, kv.SetItem(ctx, "k", "v"))
			got, ok, err := kv.GetItem(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v", got)
		})
	}
}
