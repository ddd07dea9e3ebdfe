// Package config loads gateway settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	AppEnv   string `mapstructure:"app_env"`
	HTTPAddr string `mapstructure:"http_addr"`
	GRPCAddr string `mapstructure:"grpc_addr"`

	// Store selects the persistence binding: "redis" or "memory".
	Store         string `mapstructure:"store"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	BroadcastInterval time.Duration `mapstructure:"broadcast_interval"`
	MatchOnCreate     bool          `mapstructure:"match_on_create"`

	RateLimitRPS   float64 `mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`

	// KafkaBrokers is a comma separated list. Empty disables the relay.
	KafkaBrokers string `mapstructure:"kafka_brokers"`
	KafkaTopic   string `mapstructure:"kafka_topic"`

	// PostgresDSN enables the order/trade archive when set.
	PostgresDSN    string `mapstructure:"postgres_dsn"`
	MigrateOnStart bool   `mapstructure:"migrate_on_start"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

var defaults = map[string]interface{}{
	"app_env":            "dev",
	"http_addr":          ":3333",
	"grpc_addr":          ":9090",
	"store":              StoreRedis,
	"redis_addr":         "localhost:6379",
	"redis_password":     "",
	"redis_db":           0,
	"broadcast_interval": time.Second,
	"match_on_create":    true,
	"rate_limit_rps":     20.0,
	"rate_limit_burst":   40,
	"kafka_brokers":      "",
	"kafka_topic":        "trade_gateway_events",
	"postgres_dsn":       "",
	"migrate_on_start":   true,
	"log_level":          "info",
	"log_format":         "text",
}

// Load reads envFiles (missing files are ignored) into the process
// environment and then builds the config from it.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("store must be %q or %q, got %q", StoreRedis, StoreMemory, c.Store)
	}
	if c.Store == StoreRedis && c.RedisAddr == "" {
		return fmt.Errorf("redis_addr is required for the redis store")
	}
	if c.BroadcastInterval <= 0 {
		return fmt.Errorf("broadcast_interval must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate_limit_rps and rate_limit_burst must be positive")
	}
	if c.KafkaBrokers != "" && c.KafkaTopic == "" {
		return fmt.Errorf("kafka_topic is required when kafka_brokers is set")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "dev"
}
