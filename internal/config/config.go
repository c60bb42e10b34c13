package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL  string
	Port         string
	SyncSchedule string
	Warehouse    Warehouse
}

// Warehouse holds the ClickHouse connection settings for the sync and
// scoring jobs.
type Warehouse struct {
	Host     string
	Port     string
	Database string
	Username string
	Password string
}

// Load loads configuration from multiple sources with priority:
// 1. Command flags (applied by the caller via LoadWithOverrides)
// 2. Config file (./vantage.toml or $XDG_CONFIG_HOME/vantage/vantage.toml)
// 3. Environment variables
func Load() (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, "", ""), nil
}

// LoadWithOverrides loads config and applies flag overrides.
func LoadWithOverrides(databaseURL, port string) (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, databaseURL, port), nil
}

func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("vantage")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	// Use XDG Base Directory specification
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		v.AddConfigPath(filepath.Join(configHome, "vantage"))
	}

	return v
}

func buildConfig(v *viper.Viper, overrideDatabaseURL, overridePort string) *Config {
	cfg := &Config{
		Port:         "3000",
		SyncSchedule: "0 */6 * * *",
	}

	// Apply config file values
	if v.IsSet("database_url") {
		cfg.DatabaseURL = v.GetString("database_url")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetString("port")
	}
	if v.IsSet("sync_schedule") {
		cfg.SyncSchedule = v.GetString("sync_schedule")
	}
	if v.IsSet("warehouse.host") {
		cfg.Warehouse.Host = v.GetString("warehouse.host")
	}
	if v.IsSet("warehouse.port") {
		cfg.Warehouse.Port = v.GetString("warehouse.port")
	}
	if v.IsSet("warehouse.database") {
		cfg.Warehouse.Database = v.GetString("warehouse.database")
	}
	if v.IsSet("warehouse.username") {
		cfg.Warehouse.Username = v.GetString("warehouse.username")
	}
	if v.IsSet("warehouse.password") {
		cfg.Warehouse.Password = v.GetString("warehouse.password")
	}

	// Environment fallback (only if not configured)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if !v.IsSet("port") {
		if envPort := os.Getenv("PORT"); envPort != "" {
			cfg.Port = envPort
		}
	}
	if !v.IsSet("sync_schedule") {
		if envSchedule := os.Getenv("VANTAGE_SYNC_SCHEDULE"); envSchedule != "" {
			cfg.SyncSchedule = envSchedule
		}
	}
	if cfg.Warehouse.Host == "" {
		cfg.Warehouse.Host = os.Getenv("CLICKHOUSE_HOST")
	}
	if cfg.Warehouse.Port == "" {
		cfg.Warehouse.Port = os.Getenv("CLICKHOUSE_NATIVE_PORT")
	}
	if cfg.Warehouse.Database == "" {
		cfg.Warehouse.Database = os.Getenv("CLICKHOUSE_DB_NAME")
	}
	if cfg.Warehouse.Username == "" {
		cfg.Warehouse.Username = os.Getenv("CLICKHOUSE_USERNAME")
	}
	if cfg.Warehouse.Password == "" {
		cfg.Warehouse.Password = os.Getenv("CLICKHOUSE_PASSWORD")
	}

	// Apply overrides (flags) last
	if overrideDatabaseURL != "" {
		cfg.DatabaseURL = overrideDatabaseURL
	}
	if overridePort != "" {
		cfg.Port = overridePort
	}

	return cfg
}
