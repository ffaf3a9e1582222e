// Package config holds the environment-driven configuration surface.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// DateTimeKind forces the Kind of every DateTime value the serializer
// collaborator round-trips. The cache engine never interprets it and
// does not pass it to a serializer; it takes effect only through
// Serializer.SetForcedDateTimeKind.
type DateTimeKind string

const (
	// DateTimeKindNone leaves DateTime values as the serializer produces them.
	DateTimeKindNone DateTimeKind = ""
	// DateTimeKindUTC forces DateTime.Kind = UTC.
	DateTimeKindUTC DateTimeKind = "utc"
	// DateTimeKindLocal forces DateTime.Kind = Local.
	DateTimeKindLocal DateTimeKind = "local"
	// DateTimeKindUnspecified forces DateTime.Kind = Unspecified.
	DateTimeKindUnspecified DateTimeKind = "unspecified"
)

// Config is the per-cache configuration surface.
type Config struct {
	// ApplicationName participates in default directory names.
	ApplicationName string `validate:"required"`
	// CacheDirectory overrides the default directory discovery when set.
	CacheDirectory string
	// ForcedDateTimeKind is carried in the configuration only: neither
	// Builder nor Cache passes it to the serializer collaborator.
	ForcedDateTimeKind DateTimeKind
	// IndexFlushDebounce is the inactivity window before a dirtied index
	// is flushed to disk. Default 2s.
	IndexFlushDebounce time.Duration `validate:"min=0"`
	// HttpTimeout is the default DownloadUrl timeout. Default 15s.
	HttpTimeout time.Duration `validate:"min=0"`
	// HttpRetries is the default DownloadUrl retry budget. Default 3.
	HttpRetries int `validate:"min=0"`
}

// Default returns a Config with the documented baseline defaults.
func Default(applicationName string) Config {
	return Config{
		ApplicationName:    applicationName,
		IndexFlushDebounce: 2 * time.Second,
		HttpTimeout:        15 * time.Second,
		HttpRetries:        3,
	}
}

// FromEnv builds a Config from environment variables, falling back to
// Default(applicationName) for anything unset.
func FromEnv(applicationName string) (Config, error) {
	cfg := Default(applicationName)

	cfg.CacheDirectory = getEnv("AKAVACHE_CACHE_DIR", cfg.CacheDirectory)
	cfg.ForcedDateTimeKind = DateTimeKind(getEnv("AKAVACHE_FORCED_DATETIME_KIND", string(cfg.ForcedDateTimeKind)))
	cfg.IndexFlushDebounce = getEnvDuration("AKAVACHE_INDEX_FLUSH_DEBOUNCE", cfg.IndexFlushDebounce)
	cfg.HttpTimeout = getEnvDuration("AKAVACHE_HTTP_TIMEOUT", cfg.HttpTimeout)
	cfg.HttpRetries = getEnvInt("AKAVACHE_HTTP_RETRIES", cfg.HttpRetries)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration with go-playground/validator.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
