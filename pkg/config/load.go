package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. TECHBOARD_STORE_KIND.
const EnvPrefix = "TECHBOARD"

// Config holds all runtime configuration.
type Config struct {
	Server     ServerConfig `mapstructure:"server"`
	Store      StoreConfig  `mapstructure:"store"`
	Fetch      FetchConfig  `mapstructure:"fetch"`
	Log        LogConfig    `mapstructure:"log"`
	Live       LiveConfig   `mapstructure:"live"`
	Categories Categories   `mapstructure:"categories"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	ReportTimeout time.Duration `mapstructure:"report_timeout"`
}

// StoreConfig selects and configures the record store backend.
type StoreConfig struct {
	// Kind is one of memory, badger, postgres, sqlite.
	Kind string `mapstructure:"kind"`
	// DSN is used by postgres and sqlite.
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
	// Path and InMemory are used by badger.
	Path        string `mapstructure:"path"`
	InMemory    bool   `mapstructure:"in_memory"`
	MaxMemoryMB int64  `mapstructure:"max_memory_mb"`
	// MaxDiskMB caps the badger data directory; 0 disables the check.
	MaxDiskMB int64 `mapstructure:"max_disk_mb"`
}

// FetchConfig bounds the paginated fetcher.
type FetchConfig struct {
	BatchSize int `mapstructure:"batch_size"`
	MaxRows   int `mapstructure:"max_rows"`
}

// LogConfig configures the zap logger
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LiveConfig configures the websocket summary feed.
type LiveConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Reports  []string      `mapstructure:"reports"`
}

// Load reads configuration from an optional .env file, an optional YAML file
// at path and TECHBOARD_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	if c.Fetch.BatchSize <= 0 || c.Fetch.BatchSize > MaxPageSize {
		return fmt.Errorf("fetch.batch_size must be in [1, %d], got %d", MaxPageSize, c.Fetch.BatchSize)
	}
	if c.Fetch.MaxRows < c.Fetch.BatchSize {
		return fmt.Errorf("fetch.max_rows (%d) must be at least fetch.batch_size (%d)", c.Fetch.MaxRows, c.Fetch.BatchSize)
	}
	switch c.Store.Kind {
	case "memory", "badger", "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown store.kind %q", c.Store.Kind)
	}
	if (c.Store.Kind == "postgres" || c.Store.Kind == "sqlite") && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for %s", c.Store.Kind)
	}
	if c.Server.ReportTimeout <= 0 {
		return fmt.Errorf("server.report_timeout must be positive, got %s", c.Server.ReportTimeout)
	}
	if c.Live.Interval <= 0 {
		return fmt.Errorf("live.interval must be positive, got %s", c.Live.Interval)
	}
	for i, name := range c.Live.Reports {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("live.reports[%d] is empty", i)
		}
	}
	return c.Categories.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.report_timeout", DefaultReportTimeout)

	v.SetDefault("store.kind", DefaultStoreKind)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.table", DefaultTable)
	v.SetDefault("store.path", DefaultDataDir)
	v.SetDefault("store.in_memory", false)
	v.SetDefault("store.max_memory_mb", DefaultMaxMemoryMB)
	v.SetDefault("store.max_disk_mb", DefaultMaxDiskMB)

	v.SetDefault("fetch.batch_size", BatchSize)
	v.SetDefault("fetch.max_rows", MaxFetchRows)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("live.interval", DefaultLiveInterval)
	v.SetDefault("live.reports", []string{"providers", "training"})

	defaults := DefaultCategories()
	v.SetDefault("categories.version", defaults.Version)
	v.SetDefault("categories.providers", defaults.Providers)
	v.SetDefault("categories.yes", defaults.Yes)
	v.SetDefault("categories.no", defaults.No)
}
