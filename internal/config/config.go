package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Events   EventsConfig   `mapstructure:"events"`
	Insights InsightsConfig `mapstructure:"insights"`
	Export   ExportConfig   `mapstructure:"export"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CacheConfig struct {
	// DefaultTTLSeconds applies when a dashboard carries no refresh interval.
	DefaultTTLSeconds int `mapstructure:"default_ttl_seconds"`
	CleanupInterval   int `mapstructure:"cleanup_interval_seconds"`
}

type SourcesConfig struct {
	// APIToken is injected as a bearer token on outbound API source fetches.
	APIToken          string `mapstructure:"api_token"`
	APITimeoutSeconds int    `mapstructure:"api_timeout_seconds"`
	FileStoragePath   string `mapstructure:"file_storage_path"`
}

type EventsConfig struct {
	// Backend selects the event bus transport: "memory" or "redis".
	Backend   string `mapstructure:"backend"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisDB   int    `mapstructure:"redis_db"`
}

type InsightsConfig struct {
	// CatalogPath optionally overrides the built-in insight query catalog.
	CatalogPath string `mapstructure:"catalog_path"`
}

type ExportConfig struct {
	Compression bool `mapstructure:"compression"`
}

// Load reads configuration from configs/config.yaml with ANALYTICS_* env
// overrides. Missing file is not fatal; defaults cover local development.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ANALYTICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.mode", "release")

	v.SetDefault("database.path", "./data/analytics.db")
	v.SetDefault("database.migrations_path", "./migrations")
	v.SetDefault("database.max_connections", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("cache.default_ttl_seconds", 300)
	v.SetDefault("cache.cleanup_interval_seconds", 300)

	v.SetDefault("sources.api_timeout_seconds", 10)
	v.SetDefault("sources.file_storage_path", "./data/files")

	v.SetDefault("events.backend", "memory")
	v.SetDefault("events.redis_addr", "localhost:6379")
	v.SetDefault("events.redis_db", 0)

	v.SetDefault("export.compression", false)
}
