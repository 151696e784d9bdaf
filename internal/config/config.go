package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override, e.g. HIPNOTES_SERVER__PORT.
const EnvPrefix = "HIPNOTES_"

// DefaultUserID is the mock identity used when a request carries none.
const DefaultUserID = "65a123450001234500012345"

type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
	Storage    StorageConfig    `koanf:"storage"`
	Validation ValidationConfig `koanf:"validation"`
	Auth       AuthConfig       `koanf:"auth"`
	RateLimit  RateLimitConfig  `koanf:"ratelimit"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

type StorageConfig struct {
	Type string `koanf:"type"` // memory, sqlite, postgres
	DSN  string `koanf:"dsn"`
}

type ValidationConfig struct {
	Adapter string `koanf:"adapter"` // schema, entity
}

type AuthConfig struct {
	UserHeader string `koanf:"user_header"`
	// DefaultUserID is assumed when the header is absent. Empty disables it.
	DefaultUserID string `koanf:"default_user_id"`
}

type RateLimitConfig struct {
	// RequestsPerSecond per identity; 0 disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

var defaults = map[string]any{
	"server.port":                   3000,
	"server.request_timeout":        "30s",
	"log.level":                     "info",
	"storage.type":                  "sqlite",
	"storage.dsn":                   "./data/hipnotes.db",
	"validation.adapter":            "schema",
	"auth.user_header":              "X-User-Id",
	"auth.default_user_id":          DefaultUserID,
	"ratelimit.requests_per_second": 0,
	"ratelimit.burst":               20,
	"telemetry.enabled":             false,
	"telemetry.service_name":        "hipnotes",
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads path (a missing file is not an error), then HIPNOTES_*
// environment variables, then fills in defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load %s: %w", path, err)
			}
		}
	}

	// Load environment variables (can override file config)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Storage.DSN = substituteEnvVars(cfg.Storage.DSN)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server.request_timeout must be positive, got %s", c.Server.RequestTimeout)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	switch c.Storage.Type {
	case "memory":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for %s", c.Storage.Type)
		}
	default:
		return fmt.Errorf("unknown storage.type %q", c.Storage.Type)
	}
	switch c.Validation.Adapter {
	case "schema", "entity":
	default:
		return fmt.Errorf("unknown validation.adapter %q", c.Validation.Adapter)
	}
	if c.Auth.UserHeader == "" {
		return errors.New("auth.user_header must not be empty")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("ratelimit.requests_per_second must not be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst < 1 {
		return fmt.Errorf("ratelimit.burst must be at least 1 when limiting is enabled")
	}
	return nil
}

// LogLevel parses log.level.
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
