package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// RateLimitConfig configures the per-IP token bucket.
type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxTokens     int  `mapstructure:"max_tokens"`
	RefillSeconds int  `mapstructure:"refill_seconds"`
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port          string        `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	IdleTimeout   time.Duration `mapstructure:"idle_timeout"`
	RequireAPIKey bool          `mapstructure:"require_api_key"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
}

// ClientConfig holds the settings used by the anonymize command.
type ClientConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	APIKey    string        `mapstructure:"api_key"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config holds all configuration for the anonymizer.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Client    ClientConfig    `mapstructure:"client"`
	RedisURL  string          `mapstructure:"redis_url"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// envBindings maps config keys to the environment variables that override
// them.
var envBindings = map[string]string{
	"server.port":               "PORT",
	"server.read_timeout":       "SERVER_READ_TIMEOUT",
	"server.write_timeout":      "SERVER_WRITE_TIMEOUT",
	"server.idle_timeout":       "SERVER_IDLE_TIMEOUT",
	"server.require_api_key":    "REQUIRE_API_KEY",
	"server.max_body_bytes":     "MAX_BODY_BYTES",
	"client.server_url":         "SERVER_URL",
	"client.api_key":            "API_KEY",
	"client.timeout":            "CLIENT_TIMEOUT",
	"redis_url":                 "REDIS_URL",
	"rate_limit.enabled":        "RATE_LIMIT_ENABLED",
	"rate_limit.max_tokens":     "RATE_LIMIT_MAX_TOKENS",
	"rate_limit.refill_seconds": "RATE_LIMIT_REFILL_SECONDS",
	"logging.level":             "LOG_LEVEL",
	"logging.format":            "LOG_FORMAT",
}

// SetDefaults registers the default for every key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.require_api_key", false)
	v.SetDefault("server.max_body_bytes", int64(1<<20))
	v.SetDefault("client.server_url", "http://localhost:8080")
	v.SetDefault("client.api_key", "")
	v.SetDefault("client.timeout", 30*time.Second)
	v.SetDefault("redis_url", "")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.max_tokens", 3)
	v.SetDefault("rate_limit.refill_seconds", 1)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// LoadEnv loads .env files into the process environment. Missing files are
// not an error.
func LoadEnv(logger logrus.FieldLogger) {
	files := []string{".env", ".env.local"}
	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			logger.WithError(err).Warnf("Failed to load %s", file)
			continue
		}
		loaded = append(loaded, file)
	}
	if len(loaded) == 0 {
		logger.Debug("No .env file loaded; relying on process environment")
		return
	}
	logger.Debugf("Loaded env files: %s", strings.Join(loaded, ", "))
}

// Load builds the configuration from defaults, an optional config file and
// the environment, in increasing order of precedence.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the whole configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if err := validatePort(c.Server.Port, "server.port"); err != nil {
		errs = append(errs, err)
	}
	if c.Server.RequireAPIKey && c.RedisURL == "" {
		errs = append(errs, errors.New("server.require_api_key: requires redis_url to be set"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes: must be positive (current value: %d)", c.Server.MaxBodyBytes))
	}
	if c.RateLimit.Enabled {
		if c.RateLimit.MaxTokens <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.max_tokens: must be positive (current value: %d)", c.RateLimit.MaxTokens))
		}
		if c.RateLimit.RefillSeconds <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.refill_seconds: must be positive (current value: %d)", c.RateLimit.RefillSeconds))
		}
	}
	if err := validateServerURL(c.Client.ServerURL, "client.server_url"); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func validatePort(port, fieldName string) error {
	if port == "" {
		return fmt.Errorf("%s: port cannot be empty", fieldName)
	}
	if !strings.HasPrefix(port, ":") {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	n, err := strconv.Atoi(port[1:])
	if err != nil {
		return fmt.Errorf("%s: port must be in format ':PORT' where PORT is numeric (current value: %s)", fieldName, port)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%s: port must be between 1 and 65535 (current value: %d)", fieldName, n)
	}
	return nil
}

func validateServerURL(raw, fieldName string) error {
	if raw == "" {
		return fmt.Errorf("%s: url cannot be empty", fieldName)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%s: must be an absolute http(s) URL (current value: %s)", fieldName, raw)
	}
	return nil
}
