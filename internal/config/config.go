// Package config loads csvmapper settings from environment variables.
// Defaults are applied for unset values and the result is validated on
// startup so a misconfigured server refuses to boot.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig
	Parse   ParseConfig
	Session SessionConfig
	Schema  SchemaConfig
	Rate    RateLimitConfig
	Logging LoggingConfig
	Metrics MetricsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// ParseConfig holds tokenizer settings.
type ParseConfig struct {
	// ChunkSize is the number of bytes of text handed to the tokenizer at once (default: 1MiB)
	ChunkSize int `env:"PARSE_CHUNK_SIZE" default:"1048576"`

	// ProgressInterval is how many characters are scanned between progress reports (default: 50000)
	ProgressInterval int `env:"PARSE_PROGRESS_INTERVAL" default:"50000"`

	// CancelCheckInterval is how many characters are scanned between cancellation checks (default: 1000)
	CancelCheckInterval int `env:"PARSE_CANCEL_CHECK_INTERVAL" default:"1000"`

	// MaxInputSize is the largest accepted payload in bytes (default: 100MB)
	MaxInputSize int64 `env:"PARSE_MAX_INPUT_SIZE" envAlt:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// DefaultDelimiter is used when a request does not name one (default: ,)
	DefaultDelimiter string `env:"PARSE_DEFAULT_DELIMITER" default:","`

	// DefaultEncoding is used when a request does not name one (default: utf-8)
	DefaultEncoding string `env:"PARSE_DEFAULT_ENCODING" default:"utf-8"`
}

// SessionConfig holds mapping session settings.
type SessionConfig struct {
	// MaxConcurrentParses caps parses running at once (default: 5)
	MaxConcurrentParses int `env:"SESSION_MAX_CONCURRENT_PARSES" default:"5"`

	// MaxWait is how long a new parse waits for a free slot (default: 30s)
	MaxWait time.Duration `env:"SESSION_MAX_WAIT" default:"30s"`

	// TTL is how long an idle session is kept (default: 30m)
	TTL time.Duration `env:"SESSION_TTL" default:"30m"`

	// ProgressThrottle coalesces progress updates sent to subscribers (default: 100ms)
	ProgressThrottle time.Duration `env:"SESSION_PROGRESS_THROTTLE" default:"100ms"`
}

// SchemaConfig points at the target column schema.
type SchemaConfig struct {
	// File is a YAML schema path. Empty selects the built-in contacts schema.
	File string `env:"SCHEMA_FILE"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// MetricsConfig selects where counters and timings are sent.
type MetricsConfig struct {
	// Backend is none, prometheus or datadog (default: prometheus)
	Backend string `env:"METRICS_BACKEND" default:"prometheus"`

	// DatadogAddr is the DogStatsD agent address (default: 127.0.0.1:8125)
	DatadogAddr string `env:"METRICS_DATADOG_ADDR" envAlt:"DD_AGENT_HOST" default:"127.0.0.1:8125"`

	// Namespace prefixes every metric name (default: csvmapper)
	Namespace string `env:"METRICS_NAMESPACE" default:"csvmapper"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
