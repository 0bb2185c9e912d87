package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StorageSQLite   = "sqlite"
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageRedis    = "redis"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigin  string
	StorageDriver  string
	SQLitePath     string
	DatabaseURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string
	TimeZone       string
	ReceiptWidth   int
	Logger         LoggerConfig
}

type LoggerConfig struct {
	Level             string
	Encoding          string
	DisableCaller     bool
	DisableStacktrace bool
}

func Load() Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "production")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("STORAGE_DRIVER", StorageSQLite)
	v.SetDefault("SQLITE_PATH", "tiffin.db")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_KEY_PREFIX", "tiffin:")
	v.SetDefault("TIMEZONE", "Local")
	v.SetDefault("RECEIPT_WIDTH", 32)
	v.SetDefault("LOG_DISABLE_CALLER", false)
	v.SetDefault("LOG_DISABLE_STACKTRACE", true)

	width := v.GetInt("RECEIPT_WIDTH")
	if width < 24 {
		width = 32
	}

	return Config{
		AppEnv:         strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		Port:           v.GetString("PORT"),
		AllowedOrigin:  v.GetString("ALLOWED_ORIGIN"),
		StorageDriver:  strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
		SQLitePath:     v.GetString("SQLITE_PATH"),
		DatabaseURL:    strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:      strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		RedisDB:        v.GetInt("REDIS_DB"),
		RedisKeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
		TimeZone:       v.GetString("TIMEZONE"),
		ReceiptWidth:   width,
		Logger: LoggerConfig{
			Level:             v.GetString("LOG_LEVEL"),
			Encoding:          v.GetString("LOG_ENCODING"),
			DisableCaller:     v.GetBool("LOG_DISABLE_CALLER"),
			DisableStacktrace: v.GetBool("LOG_DISABLE_STACKTRACE"),
		},
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) Development() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}

func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.TimeZone)
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// Validate checks that the selected storage driver has what it needs.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH must be set for the sqlite storage driver")
		}
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set for the postgres storage driver")
		}
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR must be set for the redis storage driver")
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.TimeZone, err)
	}
	return nil
}
