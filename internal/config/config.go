// Package config defines the configuration surface for the pulsefeed
// notification core. Configuration is loaded once at process start and is
// immutable thereafter; it follows 12-Factor principles by strictly
// separating code from configuration.
//
// Any missing required value or invalid format fails the process immediately
// on startup (fail fast).
package config

import (
	"time"

	"pulsefeed/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used for connection strings and credentials.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the specific subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"pulsefeed-notifier"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Broker   BrokerConfig
	Cache    CacheConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Pipeline PipelineConfig
}

// ServerConfig holds the health/readiness HTTP listener settings.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
}

// BrokerConfig holds broker connection and consumer-group tuning parameters.
// Concurrency values bound how many partitions a group processes in parallel;
// cross-group parallelism is always unbounded.
type BrokerConfig struct {
	URL        string `envconfig:"NATS_URL" default:"nats://127.0.0.1:4222" validate:"required"`
	Partitions int    `envconfig:"BROKER_PARTITIONS" default:"8" validate:"min=1,max=64"`

	CriticalConcurrency int `envconfig:"CONSUMER_CONCURRENCY_CRITICAL" default:"8" validate:"min=1"`
	HighConcurrency     int `envconfig:"CONSUMER_CONCURRENCY_HIGH" default:"4" validate:"min=1"`
	LowConcurrency      int `envconfig:"CONSUMER_CONCURRENCY_LOW" default:"2" validate:"min=1"`
}

// CacheConfig holds the aggregation cache (Redis) connection settings.
type CacheConfig struct {
	Addr     string       `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379" validate:"required"`
	Password SecretString `envconfig:"REDIS_PASSWORD"`
	DB       int          `envconfig:"REDIS_DB" default:"0"`
}

// DatabaseConfig holds the two relational connection strings (notification
// history and social graph) plus pool tuning shared by both pools.
type DatabaseConfig struct {
	HistoryURL SecretString `envconfig:"HISTORY_DATABASE_URL" validate:"required"`
	SocialURL  SecretString `envconfig:"SOCIAL_DATABASE_URL" validate:"required"`

	MaxConns        int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout  time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
}

// AWSConfig holds the audit store and metrics settings.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	AuditTable      string `envconfig:"AUDIT_TABLE" default:"notification-audit"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Pulsefeed"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// PipelineConfig holds the aggregation and flush timing parameters.
type PipelineConfig struct {
	WindowLength  time.Duration `envconfig:"AGG_WINDOW_LENGTH" default:"60s" validate:"min=1s"`
	WindowBuffer  time.Duration `envconfig:"AGG_WINDOW_BUFFER" default:"10s"`
	FlushInterval time.Duration `envconfig:"FLUSH_INTERVAL" default:"30s" validate:"min=1s"`

	// AuditTTL controls the time-to-live attribute on audit records.
	AuditTTL time.Duration `envconfig:"AUDIT_TTL" default:"720h"`

	// CrashExitDelay is how long the process lingers after an unrecoverable
	// consumer crash before exiting, giving the supervisor a stable restart
	// cadence and in-flight audit writes a chance to land.
	CrashExitDelay time.Duration `envconfig:"CRASH_EXIT_DELAY" default:"3s"`
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure parsing environment variable values into
	// their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
