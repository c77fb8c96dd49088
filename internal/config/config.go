// Package config loads settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"flight_tracker/internal/logging"
	"flight_tracker/internal/reconcile"
)

// EnvPrefix is prepended to every setting's environment name, e.g.
// FLIGHTS_SYNC_STRATEGY for sync.strategy.
const EnvPrefix = "FLIGHTS"

// Settings is the resolved configuration.
type Settings struct {
	Source     SourceSettings     `mapstructure:"source"`
	Database   DatabaseSettings   `mapstructure:"database"`
	Sync       SyncSettings       `mapstructure:"sync"`
	API        APISettings        `mapstructure:"api"`
	ClickHouse ClickHouseSettings `mapstructure:"clickhouse"`
	NATS       NATSSettings       `mapstructure:"nats"`
	Log        LogSettings        `mapstructure:"log"`
}

// SourceSettings configures the upstream fetch.
type SourceSettings struct {
	URL        string        `mapstructure:"url"`
	APIKey     string        `mapstructure:"api_key"`
	AuthScheme string        `mapstructure:"auth_scheme"`
	Timeout    time.Duration `mapstructure:"timeout"`
	DataKey    string        `mapstructure:"data_key"`
}

// DatabaseSettings selects the flight store.
type DatabaseSettings struct {
	URL string `mapstructure:"url"`
}

// SyncSettings controls reconciliation passes.
type SyncSettings struct {
	Strategy string        `mapstructure:"strategy"`
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"` // Zero disables the in-process scheduler.
}

// APISettings configures the HTTP server.
type APISettings struct {
	Port        int           `mapstructure:"port"`
	AuthEnabled bool          `mapstructure:"auth_enabled"`
	APIKeys     []string      `mapstructure:"api_keys"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// ClickHouseSettings configures the run audit log. Empty Addr disables it.
type ClickHouseSettings struct {
	Addr     string `mapstructure:"addr"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// NATSSettings configures run notifications. Empty URL disables them.
type NATSSettings struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

// LogSettings configures the root logger.
type LogSettings struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Environment names kept from earlier deployments.
var legacyEnv = map[string]string{
	"source.url":     "EXTERNAL_API_URL",
	"source.api_key": "EXTERNAL_API_KEY",
	"database.url":   "DATABASE_URL",
	"api.port":       "PORT",
	"log.level":      "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source.url", "")
	v.SetDefault("source.api_key", "")
	v.SetDefault("source.auth_scheme", "")
	v.SetDefault("source.timeout", 30*time.Second)
	v.SetDefault("source.data_key", "states")

	v.SetDefault("database.url", "sqlite://flights.db")

	v.SetDefault("sync.strategy", string(reconcile.StrategyReplace))
	v.SetDefault("sync.limit", reconcile.DefaultLimit)
	v.SetDefault("sync.interval", time.Duration(0))

	v.SetDefault("api.port", 8000)
	v.SetDefault("api.auth_enabled", false)
	v.SetDefault("api.api_keys", []string{})
	v.SetDefault("api.cache_ttl", 60*time.Second)

	v.SetDefault("clickhouse.addr", "")
	v.SetDefault("clickhouse.database", "flights")
	v.SetDefault("clickhouse.user", "default")
	v.SetDefault("clickhouse.password", "")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject", "flights.sync.completed")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatConsole)
}

// Load resolves settings. path names a YAML file; when empty, flighttracker.yaml
// in the working directory is read if present. Environment variables override
// the file, and the file overrides defaults.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind %s: %w", legacy, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("flighttracker")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate reports every invalid setting at once.
func (s *Settings) Validate() error {
	var errs []error

	if _, err := reconcile.ParseStrategy(s.Sync.Strategy); err != nil {
		errs = append(errs, err)
	}
	if s.Sync.Limit <= 0 {
		errs = append(errs, fmt.Errorf("sync.limit must be positive, got %d", s.Sync.Limit))
	}
	if s.Sync.Interval < 0 {
		errs = append(errs, fmt.Errorf("sync.interval must not be negative, got %s", s.Sync.Interval))
	}
	if s.Source.Timeout < 0 {
		errs = append(errs, fmt.Errorf("source.timeout must not be negative, got %s", s.Source.Timeout))
	}
	if s.API.Port <= 0 || s.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port out of range: %d", s.API.Port))
	}
	if s.API.AuthEnabled && len(s.API.APIKeys) == 0 {
		errs = append(errs, errors.New("api.auth_enabled requires at least one api.api_keys entry"))
	}
	if s.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if _, err := logging.ParseLevel(s.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch s.Log.Format {
	case "", logging.FormatConsole, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", s.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Strategy returns the validated sync strategy.
func (s *Settings) Strategy() reconcile.Strategy {
	st, _ := reconcile.ParseStrategy(s.Sync.Strategy)
	return st
}
