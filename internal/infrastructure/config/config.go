package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Locator   LocatorConfig
	Broker    BrokerConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// LocatorConfig holds the client-side locator settings.
type LocatorConfig struct {
	RegistryAddr  string        `envconfig:"LOCATOR_REGISTRY_ADDR" default:"localhost:46060"`
	ListenAddr    string        `envconfig:"LOCATOR_LISTEN_ADDR" default:"127.0.0.1:0"`
	AdvertiseAddr string        `envconfig:"LOCATOR_ADVERTISE_ADDR"`
	UserID        int32         `envconfig:"LOCATOR_USER_ID" default:"-1"`
	Lite          bool          `envconfig:"LOCATOR_LITE" default:"false"`
	DialTimeout   time.Duration `envconfig:"LOCATOR_DIAL_TIMEOUT" default:"3s"`
	CallTimeout   time.Duration `envconfig:"LOCATOR_CALL_TIMEOUT" default:"5s"`
	Refresh       time.Duration `envconfig:"LOCATOR_REFRESH_INTERVAL" default:"5s"`
	HTTPAddr      string        `envconfig:"LOCATOR_HTTP_ADDR" default:"127.0.0.1:8086"`
}

// BrokerConfig holds the reference broker settings.
type BrokerConfig struct {
	ListenAddr    string  `envconfig:"BROKER_LISTEN_ADDR" default:"0.0.0.0:46060"`
	AdvertiseAddr string  `envconfig:"BROKER_ADVERTISE_ADDR" default:"localhost:46060"`
	AdminAddr     string  `envconfig:"BROKER_ADMIN_ADDR" default:"127.0.0.1:8087"`
	DefaultUserID int32   `envconfig:"BROKER_DEFAULT_USER_ID" default:"100"`
	Users         []int32 `envconfig:"BROKER_USERS" default:"100"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds admin HTTP rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
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

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	if c.Locator.RegistryAddr == "" {
		return fmt.Errorf("invalid config: LOCATOR_REGISTRY_ADDR is empty")
	}
	if c.Locator.DialTimeout <= 0 {
		return fmt.Errorf("invalid config: LOCATOR_DIAL_TIMEOUT must be positive, got %s", c.Locator.DialTimeout)
	}
	if c.Locator.CallTimeout <= 0 {
		return fmt.Errorf("invalid config: LOCATOR_CALL_TIMEOUT must be positive, got %s", c.Locator.CallTimeout)
	}
	if c.Locator.Refresh <= 0 {
		return fmt.Errorf("invalid config: LOCATOR_REFRESH_INTERVAL must be positive, got %s", c.Locator.Refresh)
	}
	for _, u := range c.Broker.Users {
		if u <= 0 {
			return fmt.Errorf("invalid config: BROKER_USERS entry %d is not a tenant id", u)
		}
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Locator: LocatorConfig{
			RegistryAddr: "localhost:46060",
			ListenAddr:   "127.0.0.1:0",
			UserID:       -1,
			DialTimeout:  3 * time.Second,
			CallTimeout:  5 * time.Second,
			Refresh:      5 * time.Second,
			HTTPAddr:     "127.0.0.1:8086",
		},
		Broker: BrokerConfig{
			ListenAddr:    "0.0.0.0:46060",
			AdvertiseAddr: "localhost:46060",
			AdminAddr:     "127.0.0.1:8087",
			DefaultUserID: 100,
			Users:         []int32{100},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
}
