package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables use the
// DOKUSHO_ prefix with underscores for nesting (DOKUSHO_SERVER_PORT,
// DOKUSHO_DATABASE_URL, ...) and take precedence over file values.
// A .env file, if present, is loaded into the environment first.
// Returns a populated, validated Config or an error.
func Load() (*Config, error) {
	// Populate the environment from .env for local development.
	// Missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOKUSHO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; env vars alone can carry the config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults installs defaults for everything that has a sensible one.
// Secrets (database URL, JWT secret, API keys) default to empty so that
// AutomaticEnv can see the keys; validation rejects them when left unset.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("database.url", "")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.admin_key_hash", "")
	v.SetDefault("auth.token_lifetime_min", 60)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
	v.SetDefault("llm.stage_timeout_seconds", 300)

	v.SetDefault("worker.poll_interval_seconds", 15)
	v.SetDefault("worker.lease_duration_minutes", 10)
	v.SetDefault("worker.keep_alive_seconds", 120)
	v.SetDefault("worker.claim_retry_limit", 3)

	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.cron_spec", "0 5 * * *")
}
