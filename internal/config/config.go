// Package config loads the trialnotes configuration from defaults, an
// optional config.yaml and TRIALNOTES_ environment variables.
package config

import "time"

// Supported database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "TRIALNOTES_"

// Config is the top-level configuration.
type Config struct {
	Database Database `mapstructure:"database" envPrefix:"DATABASE_"`
	Server   Server   `mapstructure:"server" envPrefix:"SERVER_"`
	Export   Export   `mapstructure:"export" envPrefix:"EXPORT_"`
	Log      Log      `mapstructure:"log" envPrefix:"LOG_"`
}

// Database selects the store backend.
type Database struct {
	// Driver is DriverSQLite or DriverPostgres.
	// Env: TRIALNOTES_DATABASE_DRIVER
	Driver string `mapstructure:"driver" env:"DRIVER"`

	// DSN is a file path for sqlite3 or a connection URL for postgres.
	// Env: TRIALNOTES_DATABASE_DSN
	DSN string `mapstructure:"dsn" env:"DSN"`

	// Env: TRIALNOTES_DATABASE_MIGRATIONS_DISABLED
	MigrationsDisabled bool `mapstructure:"migrations_disabled" env:"MIGRATIONS_DISABLED"`
}

// Server configures the local HTTP bridge.
type Server struct {
	Address        string        `mapstructure:"address" env:"ADDRESS"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS" envSeparator:","`
	RequestTimeout time.Duration `mapstructure:"request_timeout" env:"REQUEST_TIMEOUT"`

	// MaxBodyBytes caps GraphQL and upload request bodies.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" env:"MAX_BODY_BYTES"`
}

// Export configures where exported files are written.
type Export struct {
	Directory string `mapstructure:"directory" env:"DIRECTORY"`
}

// Log configures the zerolog level.
type Log struct {
	Level string `mapstructure:"level" env:"LEVEL"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Database: Database{
			Driver: DriverSQLite,
			DSN:    "trialnotes.db",
		},
		Server: Server{
			Address:        "localhost:8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   32 << 20,
		},
		Export: Export{Directory: "exports"},
		Log:    Log{Level: "info"},
	}
}

// Load builds the configuration. Later sources override earlier ones:
// defaults, then config.yaml in configDir (when present), then environment.
func Load(configDir string) (*Config, error) {
	return newBuilder().
		withDefaults().
		withFile(configDir).
		withEnv().
		build()
}
