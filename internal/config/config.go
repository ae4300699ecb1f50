package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"tokopos/backend/internal/units"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	WarehouseID           int64
	StockCacheTTLSeconds  int
	AuthSecret            string
	AccessTokenTTLMinutes int
	DraftIdleTTLMinutes   int
	ScanTimeoutMS         int
	LogLevel              string
	LogFormat             string
	UnitTables            units.Tables
}

var defaults = map[string]any{
	"port":                     "8080",
	"allowed_origin":           "http://127.0.0.1:3000",
	"database_url":             "",
	"redis_addr":               "",
	"redis_password":           "",
	"redis_db":                 0,
	"default_warehouse_id":     1,
	"stock_cache_ttl_seconds":  30,
	"auth_secret":              "",
	"access_token_ttl_minutes": 480,
	"draft_idle_ttl_minutes":   60,
	"scan_timeout_ms":          100,
	"log_level":                "info",
	"log_format":               "json",
}

// Load reads configuration from the environment and, when present, a
// config.yaml in the working directory or at CONFIG_FILE. Environment
// variables win over the file.
func Load() (Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := strings.TrimSpace(v.GetString("config_file")); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	tables, err := unitTables(v)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:                  v.GetString("port"),
		AllowedOrigin:         v.GetString("allowed_origin"),
		DatabaseURL:           strings.TrimSpace(v.GetString("database_url")),
		RedisAddr:             strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:         v.GetString("redis_password"),
		RedisDB:               v.GetInt("redis_db"),
		WarehouseID:           positiveInt64(v.GetInt64("default_warehouse_id"), 1),
		StockCacheTTLSeconds:  positive(v.GetInt("stock_cache_ttl_seconds"), 30),
		AuthSecret:            strings.TrimSpace(v.GetString("auth_secret")),
		AccessTokenTTLMinutes: positive(v.GetInt("access_token_ttl_minutes"), 480),
		DraftIdleTTLMinutes:   positive(v.GetInt("draft_idle_ttl_minutes"), 60),
		ScanTimeoutMS:         positive(v.GetInt("scan_timeout_ms"), 100),
		LogLevel:              strings.ToLower(v.GetString("log_level")),
		LogFormat:             strings.ToLower(v.GetString("log_format")),
		UnitTables:            tables,
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) StockCacheTTL() time.Duration {
	return time.Duration(c.StockCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) DraftIdleTTL() time.Duration {
	return time.Duration(c.DraftIdleTTLMinutes) * time.Minute
}

func (c Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutMS) * time.Millisecond
}

// unitTables starts from the default tables and replaces every unit type
// listed under unit_conversions.
func unitTables(v *viper.Viper) (units.Tables, error) {
	tables := units.DefaultTables()
	raw := v.GetStringMap("unit_conversions")
	for unitType, entry := range raw {
		factors, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: unit_conversions.%s must be a map", units.ErrInvalidTable, unitType)
		}
		table := make(units.Table, len(factors))
		for unit, value := range factors {
			factor, err := decimal.NewFromString(strings.TrimSpace(fmt.Sprint(value)))
			if err != nil {
				return nil, fmt.Errorf("%w: unit_conversions.%s.%s: %v", units.ErrInvalidTable, unitType, unit, err)
			}
			table[strings.ToLower(unit)] = factor
		}
		tables[units.UnitType(strings.ToLower(unitType))] = table
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	return tables, nil
}

func positive(value, fallback int) int {
	if value < 1 {
		return fallback
	}
	return value
}

func positiveInt64(value, fallback int64) int64 {
	if value < 1 {
		return fallback
	}
	return value
}
