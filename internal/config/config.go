// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Executor drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Executor ExecutorConfig
	Metadata MetadataConfig
	Save     SaveConfig
	Security SecurityConfig
	Logging  LoggingConfig
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

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for non-streaming requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// ExecutorConfig selects and configures the statement executor.
type ExecutorConfig struct {
	// Driver is postgres or sqlite (default: postgres)
	Driver string `env:"EXECUTOR_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// EditableFunc names a database function answering column edit
	// permissions; empty treats every column as editable (postgres only)
	EditableFunc string `env:"DB_EDITABLE_FUNC"`

	// SQLitePath is the SQLite database file (default: in-memory)
	SQLitePath string `env:"SQLITE_PATH" default:":memory:"`

	// SQLiteDomains lists extra domains to attach; domains used by the
	// loaded forms are attached automatically
	SQLiteDomains []string `env:"SQLITE_DOMAINS"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// MetadataConfig selects where form definitions come from.
type MetadataConfig struct {
	// Path is a YAML file or directory of form definitions; when empty the
	// definitions are read from the metadata tables through the executor
	Path string `env:"METADATA_PATH"`

	// Domain holds the metadata tables (default: Cinchy)
	Domain string `env:"METADATA_DOMAIN" default:"Cinchy"`
}

// SaveConfig holds form save settings.
type SaveConfig struct {
	// SchemaVersion selects the insert statement form; below 5 inserts end
	// with the legacy id trailer (default: 5)
	SchemaVersion int `env:"SAVE_SCHEMA_VERSION" default:"5"`

	// Timeout bounds one save including its child statements (default: 2m)
	Timeout time.Duration `env:"SAVE_TIMEOUT" default:"2m"`

	// MaxSessions is the number of open editing sessions allowed (default: 1000)
	MaxSessions int `env:"SAVE_MAX_SESSIONS" default:"1000"`

	// EventBuffer is the per-subscriber event buffer size (default: 32)
	EventBuffer int `env:"SAVE_EVENT_BUFFER" default:"32"`

	// MaxConcurrent is the maximum number of saves running at once (default: 10)
	MaxConcurrent int `env:"SAVE_MAX_CONCURRENT" default:"10"`

	// MaxWait is how long a save waits for a slot (default: 30s)
	MaxWait time.Duration `env:"SAVE_MAX_WAIT" default:"30s"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables API key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
