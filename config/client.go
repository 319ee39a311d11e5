package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Cache backends understood by the terminal client.
const (
	CacheSQLite = "sqlite"
	CacheRedis  = "redis"
	CacheMemory = "memory"
)

// ClientConfig holds the terminal client configuration.
type ClientConfig struct {
	ServerURL    string `mapstructure:"server_url"`
	CacheBackend string `mapstructure:"cache_backend"`
	CachePath    string `mapstructure:"cache_path"`
	RedisAddr    string `mapstructure:"redis_addr"`
	RedisPrefix  string `mapstructure:"redis_prefix"`
	LogLevel     string `mapstructure:"log_level"`
}

// LoadClient reads $dir/config.{yaml,json,toml} when present and applies
// ROOMCHAT_* environment overrides. An empty dir means ~/.roomchat.
func LoadClient(dir string) (*ClientConfig, error) {
	if dir == "" {
		dir = DefaultClientDir()
	}

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(dir)
	v.SetEnvPrefix("ROOMCHAT")
	v.AutomaticEnv()

	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("cache_backend", CacheSQLite)
	v.SetDefault("cache_path", filepath.Join(dir, "cache.db"))
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_prefix", "roomchat:")
	v.SetDefault("log_level", "warn")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &ClientConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultClientDir is ~/.roomchat, or ROOMCHAT_HOME when set.
func DefaultClientDir() string {
	if dir := os.Getenv("ROOMCHAT_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".roomchat")
}
