// Package config provides configuration management for mediarr using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort          = 8080
	defaultServerTimeout       = 30 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultMaxOpenConns        = 25
	defaultMaxIdleConns        = 10
	defaultConnMaxIdleTime     = 30 * time.Minute
	defaultMaxThumbnailSize    = 5 * 1024 * 1024 // 5MB
	defaultSnapshotPageSize    = 30
	defaultPageSize            = 20
	defaultMaxPageSize         = 100
	defaultWatchRefreshCron    = "*/5 * * * *"
	defaultWatchRateLimit      = 120
	defaultWatchRateLimitEvery = time.Minute
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "MEDIARR"

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
	Cache    CacheConfig    `mapstructure:"cache" yaml:"cache"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`

	// WatchRateLimit caps playback reports per client per WatchRateLimitWindow.
	// Zero disables the limiter.
	WatchRateLimit       int           `mapstructure:"watch_rate_limit" yaml:"watch_rate_limit"`
	WatchRateLimitWindow time.Duration `mapstructure:"watch_rate_limit_window" yaml:"watch_rate_limit_window"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn" yaml:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level" yaml:"log_level"` // silent, error, warn, info
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	BaseDir      string `mapstructure:"base_dir" yaml:"base_dir"`
	ThumbnailDir string `mapstructure:"thumbnail_dir" yaml:"thumbnail_dir"`
	// MaxThumbnailSize is the maximum accepted thumbnail upload.
	// Supports human-readable values like "5MiB" or raw byte counts.
	MaxThumbnailSize ByteSize `mapstructure:"max_thumbnail_size" yaml:"max_thumbnail_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// CatalogConfig holds listing and snapshot configuration.
type CatalogConfig struct {
	// SnapshotPageSize is the page size used when assembling the full catalog.
	SnapshotPageSize int  `mapstructure:"snapshot_page_size" yaml:"snapshot_page_size"`
	WarmOnStart      bool `mapstructure:"warm_on_start" yaml:"warm_on_start"`
	// RebuildOnWrite schedules a background snapshot build after catalog-wide writes.
	RebuildOnWrite  bool `mapstructure:"rebuild_on_write" yaml:"rebuild_on_write"`
	DefaultPageSize int  `mapstructure:"default_page_size" yaml:"default_page_size"`
	MaxPageSize     int  `mapstructure:"max_page_size" yaml:"max_page_size"`
	// RebuildCron periodically rebuilds the snapshot. Empty disables it.
	RebuildCron string `mapstructure:"rebuild_cron" yaml:"rebuild_cron"`
}

// CacheConfig holds cache region configuration.
type CacheConfig struct {
	// WatchRefreshCron controls how often the watch-derived rankings are
	// flushed. Standard 5-field cron or descriptors such as "@every 1m".
	WatchRefreshCron string `mapstructure:"watch_refresh_cron" yaml:"watch_refresh_cron"`
	MetricsEnabled   bool   `mapstructure:"metrics_enabled" yaml:"metrics_enabled"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with MEDIARR_ and use underscores for nesting.
// Example: MEDIARR_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("mediarr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/mediarr")
		v.AddConfigPath("$HOME/.mediarr")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.watch_rate_limit", defaultWatchRateLimit)
	v.SetDefault("server.watch_rate_limit_window", defaultWatchRateLimitEvery)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "mediarr.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.base_dir", "./data")
	v.SetDefault("storage.thumbnail_dir", "thumbnails")
	v.SetDefault("storage.max_thumbnail_size", defaultMaxThumbnailSize)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("catalog.snapshot_page_size", defaultSnapshotPageSize)
	v.SetDefault("catalog.warm_on_start", true)
	v.SetDefault("catalog.rebuild_on_write", true)
	v.SetDefault("catalog.default_page_size", defaultPageSize)
	v.SetDefault("catalog.max_page_size", defaultMaxPageSize)
	v.SetDefault("catalog.rebuild_cron", "")

	v.SetDefault("cache.watch_refresh_cron", defaultWatchRefreshCron)
	v.SetDefault("cache.metrics_enabled", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.WatchRateLimit < 0 {
		return fmt.Errorf("server.watch_rate_limit must not be negative")
	}
	if c.Server.WatchRateLimit > 0 && c.Server.WatchRateLimitWindow <= 0 {
		return fmt.Errorf("server.watch_rate_limit_window must be positive when the limit is set")
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir is required")
	}
	if c.Storage.MaxThumbnailSize <= 0 {
		return fmt.Errorf("storage.max_thumbnail_size must be positive")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Catalog.SnapshotPageSize < 1 {
		return fmt.Errorf("catalog.snapshot_page_size must be at least 1")
	}
	if c.Catalog.DefaultPageSize < 1 {
		return fmt.Errorf("catalog.default_page_size must be at least 1")
	}
	if c.Catalog.MaxPageSize < c.Catalog.DefaultPageSize {
		return fmt.Errorf("catalog.max_page_size must be at least catalog.default_page_size")
	}

	if c.Catalog.RebuildCron != "" {
		if _, err := cron.ParseStandard(c.Catalog.RebuildCron); err != nil {
			return fmt.Errorf("catalog.rebuild_cron is invalid: %w", err)
		}
	}
	if c.Cache.WatchRefreshCron != "" {
		if _, err := cron.ParseStandard(c.Cache.WatchRefreshCron); err != nil {
			return fmt.Errorf("cache.watch_refresh_cron is invalid: %w", err)
		}
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ThumbnailPath returns the full path to the thumbnail directory.
func (c *StorageConfig) ThumbnailPath() string {
	if filepath.IsAbs(c.ThumbnailDir) {
		return c.ThumbnailDir
	}
	return filepath.Join(c.BaseDir, c.ThumbnailDir)
}
