package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	MCP      MCPConfig      `mapstructure:"mcp"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port                   int    `mapstructure:"port"                     validate:"required,gt=0,lt=65536"`
	LogLevel               string `mapstructure:"log_level"                validate:"required,oneof=debug info warn error fatal"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gte=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// Driver selects the store implementation: postgres (pgx), sqlite (modernc) or
// memory for throwaway runs.
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"            validate:"required,oneof=postgres sqlite memory"`
	URL             string `mapstructure:"url"               validate:"required_unless=Driver memory"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"    validate:"gte=0"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" validate:"gte=0"` // minutes
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
	BCryptCost           int    `mapstructure:"bcrypt_cost"            validate:"gte=4,lte=31"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	Provider          string   `mapstructure:"provider"            validate:"required,oneof=gemini ollama"`
	GeminiAPIKey      string   `mapstructure:"gemini_api_key"      validate:"required_if=Provider gemini"`
	OllamaHost        string   `mapstructure:"ollama_host"         validate:"required_if=Provider ollama"`
	DefaultModel      string   `mapstructure:"default_model"       validate:"required"`
	FastModel         string   `mapstructure:"fast_model"          validate:"required"`
	AllowedModels     []string `mapstructure:"allowed_models"`
	Temperature       float64  `mapstructure:"temperature"         validate:"gte=0,lte=2"`
	MaxTokens         int      `mapstructure:"max_tokens"          validate:"required,gt=0"`
	MaxRetries        int      `mapstructure:"max_retries"         validate:"gte=0,lte=10"`
	RetryDelaySeconds int      `mapstructure:"retry_delay_seconds" validate:"gte=0"`
	PromptsFile       string   `mapstructure:"prompts_file"`
}

// TaskConfig controls the worker loop and the recovery sweep.
type TaskConfig struct {
	WorkerCount              int `mapstructure:"worker_count"               validate:"required,gt=0"`
	MaxAttempts              int `mapstructure:"max_attempts"               validate:"required,gt=0"`
	BackoffBaseSeconds       int `mapstructure:"backoff_base_seconds"       validate:"gte=0"`
	BackoffMaxSeconds        int `mapstructure:"backoff_max_seconds"        validate:"gte=0"`
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds" validate:"required,gt=0"`
	StaleAfterSeconds        int `mapstructure:"stale_after_seconds"        validate:"required,gtfield=HeartbeatIntervalSeconds"`
	SweepIntervalSeconds     int `mapstructure:"sweep_interval_seconds"     validate:"required,gt=0"`
	FetchTimeoutSeconds      int `mapstructure:"fetch_timeout_seconds"      validate:"required,gt=0"`
	AnalysisTimeoutSeconds   int `mapstructure:"analysis_timeout_seconds"   validate:"required,gt=0"`
	QueueSize                int `mapstructure:"queue_size"                 validate:"required,gt=0"`
	ReportRetentionDays      int `mapstructure:"report_retention_days"      validate:"gte=0"`
}

// QueueConfig selects the work queue backend. With Embedded set the nats
// backend starts an in-process JetStream server instead of dialing NATSURL.
type QueueConfig struct {
	Backend        string `mapstructure:"backend"          validate:"required,oneof=memory nats"`
	NATSURL        string `mapstructure:"nats_url"         validate:"required_if=Backend nats Embedded false"`
	Embedded       bool   `mapstructure:"embedded"`
	StoreDir       string `mapstructure:"store_dir"`
	Stream         string `mapstructure:"stream"           validate:"required_if=Backend nats"`
	Subject        string `mapstructure:"subject"          validate:"required_if=Backend nats"`
	Consumer       string `mapstructure:"consumer"         validate:"required_if=Backend nats"`
	AckWaitSeconds int    `mapstructure:"ack_wait_seconds" validate:"gte=0"`
	MaxDeliver     int    `mapstructure:"max_deliver"      validate:"gte=0"`
}

// FetchConfig configures repository retrieval.
type FetchConfig struct {
	GitHubToken     string   `mapstructure:"github_token"`
	WorkDir         string   `mapstructure:"work_dir"`
	MaxDigestBytes  int      `mapstructure:"max_digest_bytes" validate:"gte=0"`
	MaxFileBytes    int      `mapstructure:"max_file_bytes"   validate:"gte=0"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
}

// MCPConfig configures the stdio MCP server.
type MCPConfig struct {
	OwnerID string `mapstructure:"owner_id" validate:"omitempty,uuid"`
}

// Seconds converts a whole number of seconds from configuration into a time.Duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
