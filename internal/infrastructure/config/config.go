// Package config loads realm host and bridge configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Realm     RealmConfig
	Bridge    BridgeConfig
	XHR       XHRConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// RealmConfig holds destination realm configuration.
type RealmConfig struct {
	PoolSize         int           `envconfig:"REALM_POOL_SIZE" default:"4"`
	Timeout          time.Duration `envconfig:"REALM_TIMEOUT" default:"5s"`
	MaxCallStackSize int           `envconfig:"REALM_MAX_CALL_STACK" default:"1024"`
	Console          bool          `envconfig:"REALM_CONSOLE" default:"true"`
	Scripts          string        `envconfig:"REALM_SCRIPTS" default:""`
}

// BridgeConfig holds forwarding configuration.
type BridgeConfig struct {
	RequestTimeout  time.Duration `envconfig:"BRIDGE_REQUEST_TIMEOUT" default:"10s"`
	BreakerFailures uint32        `envconfig:"BRIDGE_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"BRIDGE_BREAKER_COOLDOWN" default:"30s"`
	Manifest        string        `envconfig:"BRIDGE_MANIFEST" default:""`
	MaxMessageBytes int64         `envconfig:"BRIDGE_MAX_MESSAGE_BYTES" default:"1048576"`
}

// XHRConfig holds configuration for the host XMLHttpRequest type.
type XHRConfig struct {
	Enabled   bool          `envconfig:"XHR_ENABLED" default:"true"`
	Timeout   time.Duration `envconfig:"XHR_TIMEOUT" default:"30s"`
	UserAgent string        `envconfig:"XHR_USER_AGENT" default:"realmbridge-xhr/1.0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for realm sessions.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"10"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"20"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Realm: RealmConfig{
			PoolSize:         4,
			Timeout:          5 * time.Second,
			MaxCallStackSize: 1024,
			Console:          true,
		},
		Bridge: BridgeConfig{
			RequestTimeout:  10 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: 30 * time.Second,
			MaxMessageBytes: 1 << 20,
		},
		XHR: XHRConfig{
			Enabled:   true,
			Timeout:   30 * time.Second,
			UserAgent: "realmbridge-xhr/1.0",
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 10,
			Burst:             20,
			Enabled:           true,
		},
	}
}

// Addr returns the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}
