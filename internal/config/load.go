package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "CODESCOPE"

// defaults lists every configuration key with its default value. Registering
// each key here is also what lets viper resolve it from the environment.
var defaults = map[string]interface{}{
	"server.port":                     8080,
	"server.log_level":                "info",
	"server.shutdown_timeout_seconds": 30,

	"database.driver":            "sqlite",
	"database.url":               "file:codescope.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
	"database.max_open_conns":    10,
	"database.max_idle_conns":    5,
	"database.conn_max_lifetime": 5,
	"database.auto_migrate":      true,

	"auth.token_lifetime_minutes": 60,
	"auth.bcrypt_cost":            10,

	"llm.provider":            "gemini",
	"llm.default_model":       "gemini-2.0-flash",
	"llm.fast_model":          "gemini-2.0-flash-lite",
	"llm.allowed_models":      []string{"gemini-2.0-flash", "gemini-2.0-flash-lite"},
	"llm.temperature":         0.2,
	"llm.max_tokens":          30000,
	"llm.max_retries":         2,
	"llm.retry_delay_seconds": 2,
	"llm.prompts_file":        "",

	"task.worker_count":               2,
	"task.max_attempts":               3,
	"task.backoff_base_seconds":       5,
	"task.backoff_max_seconds":        300,
	"task.heartbeat_interval_seconds": 15,
	"task.stale_after_seconds":        120,
	"task.sweep_interval_seconds":     30,
	"task.fetch_timeout_seconds":      300,
	"task.analysis_timeout_seconds":   600,
	"task.queue_size":                 100,
	"task.report_retention_days":      0,

	"queue.backend":          "memory",
	"queue.embedded":         false,
	"queue.store_dir":        "",
	"queue.stream":           "CODESCOPE_TASKS",
	"queue.subject":          "codescope.tasks.analyze",
	"queue.consumer":         "codescope-workers",
	"queue.ack_wait_seconds": 60,
	"queue.max_deliver":      20,

	"fetch.work_dir":         "",
	"fetch.max_digest_bytes": 120000,
	"fetch.max_file_bytes":   200000,
}

// envOnlyKeys have no default but must still be resolvable from the environment.
var envOnlyKeys = []string{
	"auth.jwt_secret",
	"llm.gemini_api_key",
	"llm.ollama_host",
	"queue.nats_url",
	"fetch.exclude_patterns",
	"mcp.owner_id",
}

// Load configuration from environment variables and optionally config files.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile behaves like Load but reads the given config file instead of
// searching for config.yaml in the working directory.
func LoadFile(path string) (*Config, error) {
	// A .env file is optional; existing environment variables win over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}
	// GITHUB_TOKEN is honoured for compatibility with git tooling
	if err := v.BindEnv("fetch.github_token", EnvPrefix+"_FETCH_GITHUB_TOKEN", "GITHUB_TOKEN"); err != nil {
		return nil, fmt.Errorf("failed to bind environment variable for fetch.github_token: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the struct tags on cfg.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
