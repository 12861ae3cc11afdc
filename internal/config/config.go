// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override, PGMIRROR_* plus DATABASE_URL)
//  2. Config file (./config.yaml or ~/.pgmirror/config.yaml)
//  3. Default values
//
// The two configuration halves:
//   - Primary: PostgreSQL connection parameters and the router retry policy
//   - Mirror: SQLite mirror path, dump source, mirrored tables, autosync
//
// Sensitive data (the database password) is never logged; see MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrInvalidPostgresHost indicates the PostgreSQL host is empty.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is empty.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is unknown.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidMaxRetries indicates the retry count is below 1.
	ErrInvalidMaxRetries = errors.New("invalid max retries")

	// ErrInvalidRetryInterval indicates the retry interval is negative.
	ErrInvalidRetryInterval = errors.New("invalid retry interval")

	// ErrInvalidSyncInterval indicates the mirror sync interval is negative.
	ErrInvalidSyncInterval = errors.New("invalid sync interval")

	// ErrMissingMirrorPath indicates the mirror is enabled without a file path.
	ErrMissingMirrorPath = errors.New("missing mirror path")

	// ErrMissingMirrorTables indicates the mirror is enabled without tables.
	ErrMissingMirrorTables = errors.New("missing mirrored tables")
)

// Default mirrored tables, matching the warehouse schema in db/migrations.
var defaultMirrorTables = []string{"app_inventory", "vip_products", "vip_brands"}

// Config stores application configuration.
// SECURITY: the PostgreSQL password is masked in MarshalJSON.
type Config struct {
	// Primary store connection
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Router retry policy
	MaxRetries           int     `mapstructure:"max_retries" json:"max_retries"`
	RetryIntervalSeconds float64 `mapstructure:"retry_interval_seconds" json:"retry_interval_seconds"`

	// Mirror configuration
	MirrorEnabled             bool     `mapstructure:"mirror_enabled" json:"mirror_enabled"`
	MirrorPath                string   `mapstructure:"mirror_path" json:"mirror_path"`
	MirrorDumpPath            string   `mapstructure:"mirror_dump_path" json:"mirror_dump_path"`
	MirrorTables              []string `mapstructure:"mirror_tables" json:"mirror_tables"`
	MirrorAutoSync            bool     `mapstructure:"mirror_auto_sync" json:"mirror_auto_sync"`
	MirrorSyncIntervalSeconds float64  `mapstructure:"mirror_sync_interval_seconds" json:"mirror_sync_interval_seconds"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".pgmirror"))
	}

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// Missing config file is fine, defaults and env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults", "config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL wins over individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	cfg.MirrorTables = normalizeTables(cfg.MirrorTables)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "app")
	v.SetDefault("postgres_password", "app_pw")
	v.SetDefault("postgres_db_name", "warehouse")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_interval_seconds", 1.0)

	v.SetDefault("mirror_enabled", true)
	v.SetDefault("mirror_path", filepath.Join("data", "postgres_mirror.sqlite"))
	v.SetDefault("mirror_dump_path", filepath.Join("data", "postgres_dump.sql"))
	v.SetDefault("mirror_tables", defaultMirrorTables)
	v.SetDefault("mirror_auto_sync", true)
	v.SetDefault("mirror_sync_interval_seconds", 300.0)
}

// bindEnvVariables binds environment variable overrides explicitly.
// DATABASE_URL is handled separately in parseDatabaseURL.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("postgres_host", "PGMIRROR_DB_HOST")
	mustBind("postgres_port", "PGMIRROR_DB_PORT")
	mustBind("postgres_user", "PGMIRROR_DB_USER")
	mustBind("postgres_password", "PGMIRROR_DB_PASSWORD")
	mustBind("postgres_db_name", "PGMIRROR_DB_NAME")
	mustBind("postgres_ssl_mode", "PGMIRROR_DB_SSL_MODE")

	mustBind("max_retries", "PGMIRROR_MAX_RETRIES")
	mustBind("retry_interval_seconds", "PGMIRROR_RETRY_INTERVAL")

	mustBind("mirror_enabled", "PGMIRROR_MIRROR_ENABLED")
	mustBind("mirror_path", "PGMIRROR_MIRROR_PATH")
	mustBind("mirror_dump_path", "PGMIRROR_DUMP_PATH")
	mustBind("mirror_tables", "PGMIRROR_MIRROR_TABLES")
	mustBind("mirror_auto_sync", "PGMIRROR_AUTO_SYNC")
	mustBind("mirror_sync_interval_seconds", "PGMIRROR_SYNC_INTERVAL")
}

// normalizeTables trims whitespace and drops empty entries. Viper may hand
// back a single comma-separated string when the value came from an env var.
func normalizeTables(tables []string) []string {
	if len(tables) == 1 && strings.Contains(tables[0], ",") {
		tables = strings.Split(tables[0], ",")
	}
	out := make([]string, 0, len(tables))
	for _, t := range tables {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// RetryInterval returns the router retry interval as a duration.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalSeconds * float64(time.Second))
}

// SyncInterval returns the mirror autosync interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.MirrorSyncIntervalSeconds * float64(time.Second))
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are
// fully masked; longer ones keep the first and last two characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with the password masked.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
