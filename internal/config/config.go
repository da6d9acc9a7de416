// Package config loads the process configuration from the environment and the
// per-gateway operation settings from a YAML file.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Env is the environment the service runs in.
type Env string

const (
	EnvLocal  Env = "local"
	EnvDocker Env = "docker"
)

// Config holds the process configuration.
type Config struct {
	AppEnv   Env    `env:"APP_ENV" envDefault:"local"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT"`

	// GatewaysFile points at the YAML gateway settings. Empty means every
	// gateway runs with defaults.
	GatewaysFile string `env:"GATEWAYS_FILE"`

	// PostgresDSN selects the Postgres store; empty keeps records in memory.
	PostgresDSN string `env:"POSTGRES_DSN"`

	// RedisAddr selects the Redis record lock; empty uses an in-process lock.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	LockTTL       time.Duration `env:"LOCK_TTL" envDefault:"30s"`

	// KafkaBrokers enables publishing of payment success events.
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"payment.operation.succeeded"`

	StripeAPIKey  string `env:"STRIPE_API_KEY"`
	StripeBaseURL string `env:"STRIPE_BASE_URL"`

	// PublicBaseURL prefixes the notification URLs handed to gateways.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	TracingEnabled  bool          `env:"TRACING_ENABLED" envDefault:"false"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load reads the configuration from environment variables and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration.
func (c Config) Validate() error {
	if c.AppEnv != EnvLocal && c.AppEnv != EnvDocker {
		return fmt.Errorf("invalid APP_ENV: %s (must be 'local' or 'docker')", c.AppEnv)
	}
	if c.HTTPAddr == "" {
		return fmt.Errorf("HTTP_ADDR is required")
	}
	if c.LogFormat != "" && c.LogFormat != "json" && c.LogFormat != "console" {
		return fmt.Errorf("invalid LOG_FORMAT: %s (must be 'json' or 'console')", c.LogFormat)
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
