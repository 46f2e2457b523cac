package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"     validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"       validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Task      TaskConfig      `mapstructure:"task"       validate:"required"`
	Providers ProvidersConfig `mapstructure:"providers"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
// An empty URL keeps part records in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret                 string        `mapstructure:"jwt_secret"                   validate:"required,min=32"`
	TokenLifetimeMinutes      int           `mapstructure:"token_lifetime_minutes"       validate:"required,gt=0"`
	GuestTokenLifetimeMinutes int           `mapstructure:"guest_token_lifetime_minutes" validate:"required,gt=0"`
	APIKeyDigests             []string      `mapstructure:"api_key_digests"              validate:"dive,len=64,hexadecimal"`
	Users                     []UserAccount `mapstructure:"users"                        validate:"dive"`
}

// UserAccount is an operator login with a bcrypt password hash.
type UserAccount struct {
	Username     string `mapstructure:"username"      validate:"required"`
	PasswordHash string `mapstructure:"password_hash" validate:"required"`
}

// RateLimitConfig controls the guest sliding-window limiter.
type RateLimitConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Store           string        `mapstructure:"store"            validate:"required,oneof=memory redis"`
	Tiers           []TierConfig  `mapstructure:"tiers"            validate:"required_if=Enabled true,dive"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gte=0"`
}

// TierConfig is a single limit tier, e.g. 60 hits per minute.
type TierConfig struct {
	Name   string        `mapstructure:"name"   validate:"required"`
	Limit  int           `mapstructure:"limit"  validate:"required,gt=0"`
	Window time.Duration `mapstructure:"window" validate:"required,gt=0"`
}

// RedisConfig is only required when rate_limit.store is "redis".
type RedisConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// TaskConfig tunes the scheduler and the enrichment worker pool.
type TaskConfig struct {
	WorkerCount    int           `mapstructure:"worker_count"    validate:"required,gt=0"`
	QueueSize      int           `mapstructure:"queue_size"      validate:"required,gt=0"`
	TaskBudget     time.Duration `mapstructure:"task_budget"     validate:"required,gt=0"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" validate:"required,gt=0"`
	MaxAttempts    int           `mapstructure:"max_attempts"    validate:"required,gt=0"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"    validate:"required,gt=0"`
	Retention      time.Duration `mapstructure:"retention"       validate:"required,gt=0"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"  validate:"required,gt=0"`
	ExclusiveTypes []string      `mapstructure:"exclusive_types"`
}

// ProvidersConfig lists the part distributors and the optional static
// capability table.
type ProvidersConfig struct {
	RegistryFile string              `mapstructure:"registry_file"`
	Distributors []DistributorConfig `mapstructure:"distributors"  validate:"dive"`
}

// DistributorConfig describes one HTTP part-distributor integration.
type DistributorConfig struct {
	Name    string `mapstructure:"name"     validate:"required"`
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}

// CacheConfig sizes the in-process artifact cache.
type CacheConfig struct {
	MaxCostBytes int64         `mapstructure:"max_cost_bytes" validate:"gte=0"`
	TTL          time.Duration `mapstructure:"ttl"            validate:"gte=0"`
}
