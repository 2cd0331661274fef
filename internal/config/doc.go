// Package config defines the application configuration model and loads it
// from environment variables (DOKUSHO_ prefix) and an optional config.yaml,
// validating the result before the application starts.
package config
