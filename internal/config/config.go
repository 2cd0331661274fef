package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"  validate:"required"`
	Auth      AuthConfig      `mapstructure:"auth"      validate:"required"`
	LLM       LLMConfig       `mapstructure:"llm"       validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker"    validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// ServerConfig contains all HTTP server related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// AuthConfig contains the admin authentication settings. The admin API key is
// stored as a bcrypt hash; clients exchange the plaintext key for a
// short-lived JWT at the token endpoint.
type AuthConfig struct {
	JWTSecret        string `mapstructure:"jwt_secret"         validate:"required,min=32"`
	AdminKeyHash     string `mapstructure:"admin_key_hash"     validate:"required"`
	TokenLifetimeMin int    `mapstructure:"token_lifetime_min" validate:"required,gt=0"`
}

// LLMConfig contains all generative-model integration settings.
type LLMConfig struct {
	GeminiAPIKey        string `mapstructure:"gemini_api_key"        validate:"required"`
	ModelName           string `mapstructure:"model_name"            validate:"required"`
	MaxRetries          int    `mapstructure:"max_retries"           validate:"gte=0"`
	RetryDelaySeconds   int    `mapstructure:"retry_delay_seconds"   validate:"gte=0"`
	StageTimeoutSeconds int    `mapstructure:"stage_timeout_seconds" validate:"required,gt=0"`
}

// WorkerConfig tunes the polling worker loop and the lease protocol.
//
// KeepAliveInterval should stay well under LeaseDuration (a third or less) so
// normal stage execution never lets the lease lapse.
type WorkerConfig struct {
	PollIntervalSeconds  int `mapstructure:"poll_interval_seconds"  validate:"required,gt=0"`
	LeaseDurationMinutes int `mapstructure:"lease_duration_minutes" validate:"required,gt=0"`
	KeepAliveSeconds     int `mapstructure:"keep_alive_seconds"     validate:"required,gt=0"`
	ClaimRetryLimit      int `mapstructure:"claim_retry_limit"      validate:"required,gt=0"`
}

// PollInterval returns the worker poll interval as a duration.
func (w WorkerConfig) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalSeconds) * time.Second
}

// LeaseDuration returns the lease duration as a duration.
func (w WorkerConfig) LeaseDuration() time.Duration {
	return time.Duration(w.LeaseDurationMinutes) * time.Minute
}

// KeepAliveInterval returns the lease renewal cadence as a duration.
func (w WorkerConfig) KeepAliveInterval() time.Duration {
	return time.Duration(w.KeepAliveSeconds) * time.Second
}

// SchedulerConfig controls the daily enqueue cron job.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CronSpec string `mapstructure:"cron_spec"`
}
