package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "STOCKROOM"

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags plus the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if cfg.RateLimit.Enabled && cfg.RateLimit.Store == "redis" && cfg.Redis.URL == "" {
		return errors.New("config validation failed: redis.url is required when rate_limit.store is redis")
	}
	if cfg.LLM.GeminiAPIKey != "" && cfg.LLM.ModelName == "" {
		return errors.New("config validation failed: llm.model_name is required when a gemini key is set")
	}
	return nil
}

// setDefaults registers a default for every key so AutomaticEnv can
// override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.guest_token_lifetime_minutes", 30)
	v.SetDefault("auth.api_key_digests", []string{})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.store", "memory")
	v.SetDefault("rate_limit.cleanup_interval", "5m")
	v.SetDefault("rate_limit.tiers", []map[string]any{
		{"name": "per-minute", "limit": 30, "window": "1m"},
		{"name": "per-hour", "limit": 300, "window": "1h"},
	})

	v.SetDefault("redis.url", "")

	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.queue_size", 256)
	v.SetDefault("task.task_budget", "2m")
	v.SetDefault("task.attempt_timeout", "20s")
	v.SetDefault("task.max_attempts", 3)
	v.SetDefault("task.backoff_base", "500ms")
	v.SetDefault("task.retention", "1h")
	v.SetDefault("task.sweep_interval", "5m")
	v.SetDefault("task.exclusive_types", []string{"part_enrichment"})

	v.SetDefault("providers.registry_file", "")

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")

	v.SetDefault("cache.max_cost_bytes", 64<<20)
	v.SetDefault("cache.ttl", "6h")
}
