// Package config loads the service configuration from MODBOT_ environment
// variables on top of built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix every configuration variable carries
const EnvPrefix = "MODBOT_"

// AppConfig holds configuration values parsed from environment variables.
type AppConfig struct {
	// DatabaseURL selects PostgreSQL storage; empty keeps everything in memory.
	DatabaseURL string `koanf:"database_url" validate:"omitempty,url"`

	Port int `koanf:"port" validate:"required,gte=1,lt=65535"`

	// LogLevel is one of the levels internal/logger understands.
	LogLevel string `koanf:"log_level" validate:"required,oneof=trace debug info warn error"`

	// RedisURL moves the lookup cache to Redis when set.
	RedisURL string `koanf:"redis_url" validate:"omitempty,url"`

	FarcasterAPIURL  string `koanf:"farcaster_api_url" validate:"required,url"`
	FarcasterAPIKey  string `koanf:"farcaster_api_key"`
	FarcasterRetries int    `koanf:"farcaster_retry_max" validate:"gte=0,lte=10"`

	LookupCacheSize int           `koanf:"lookup_cache_size" validate:"required,gte=1"`
	LookupCacheTTL  time.Duration `koanf:"lookup_cache_ttl" validate:"gte=0"`

	ChannelCacheSize int           `koanf:"channel_cache_size" validate:"required,gte=1"`
	ChannelCacheTTL  time.Duration `koanf:"channel_cache_ttl" validate:"gte=0"`

	// SentryDSN enables error reporting when set.
	SentryDSN string `koanf:"sentry_dsn"`

	Environment string `koanf:"environment" validate:"required,oneof=development staging production"`

	// EvaluationTimeout bounds a single cast validation.
	EvaluationTimeout time.Duration `koanf:"evaluation_timeout" validate:"gt=0"`

	// UsageBuffer is the fraction of the monthly allowance tolerated past the limit.
	UsageBuffer float64 `koanf:"usage_buffer" validate:"gte=0,lte=1"`

	// ExecuteOnProtocol lets actions call the Farcaster API.
	ExecuteOnProtocol bool `koanf:"execute_on_protocol"`
}

// Defaults are applied before the environment is read
func Defaults() AppConfig {
	return AppConfig{
		Port:              8080,
		LogLevel:          "info",
		FarcasterAPIURL:   "https://api.neynar.com",
		FarcasterRetries:  2,
		LookupCacheSize:   10000,
		LookupCacheTTL:    5 * time.Minute,
		ChannelCacheSize:  10000,
		ChannelCacheTTL:   5 * time.Minute,
		Environment:       "development",
		EvaluationTimeout: 30 * time.Second,
		UsageBuffer:       0.1,
	}
}

// envLoader loads MODBOT_ variables, lowercased and without the prefix.
// Tests replace it.
var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil)
}

// Load parses environment variables and returns an AppConfig instance.
// It applies default values and runs validation automatically.
func Load() (*AppConfig, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("error loading env: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &cfg, nil
}
