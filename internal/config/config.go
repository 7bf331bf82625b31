package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Routes RoutesConfig `yaml:"routes" mapstructure:"routes"`
	Zones  ZonesConfig  `yaml:"zones" mapstructure:"zones"`
	Report ReportConfig `yaml:"report" mapstructure:"report"`
	Sync   SyncConfig   `yaml:"sync" mapstructure:"sync"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the shared remote store.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CacheConfig configures the local durable cache.
type CacheConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RoutesConfig points at the route boundary files, one entry per DSP.
// Map iteration order is not load order; Order fixes the load sequence,
// which decides who wins in overlapping territory.
type RoutesConfig struct {
	Files map[string]string `yaml:"files" mapstructure:"files"` // DSP code -> geojson or shapefile path
	Order []string          `yaml:"order" mapstructure:"order"` // DSP codes in load order
}

// ZonesConfig points at the mismatch zone rule table.
type ZonesConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ReportConfig configures the daily report source.
type ReportConfig struct {
	Path        string `yaml:"path" mapstructure:"path"` // local file, used when URL is empty
	URL         string `yaml:"url" mapstructure:"url"`   // ftp:// drop location
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SyncConfig configures shared-view synchronization.
type SyncConfig struct {
	MaxAttempts     int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffMs       int `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	BreakerFailures int `yaml:"breaker_failures" mapstructure:"breaker_failures"`
}

// ServerConfig configures the read-only HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the fields a given mode of operation requires. Modes:
// "scan" (interactive scanning), "serve" (HTTP API), "status" (shared store
// used when configured, never required), "offline" (no shared store).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "scan":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required (use offline mode to scan without it)")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
	case "status", "offline":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Cache.Path == "" {
		problems = append(problems, "cache.path is required")
	}
	if c.Sync.MaxAttempts < 1 || c.Sync.MaxAttempts > 10 {
		problems = append(problems, "sync.max_attempts must be between 1 and 10")
	}
	for _, dsp := range c.Routes.Order {
		if _, ok := c.Routes.Files[dsp]; !ok {
			problems = append(problems, "routes.order lists "+dsp+" but routes.files has no entry for it")
		}
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SORTSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cache.path", "sortscan.db")
	v.SetDefault("zones.path", "zones.yaml")
	v.SetDefault("report.timeout_secs", 30)
	v.SetDefault("sync.max_attempts", 3)
	v.SetDefault("sync.backoff_ms", 300)
	v.SetDefault("sync.breaker_failures", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
