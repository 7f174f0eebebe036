package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidDatabaseConfig = errors.New("invalid database configuration")
	ErrInvalidServerConfig   = errors.New("invalid server configuration")
	ErrInvalidLogConfig      = errors.New("invalid log configuration")
)

func (cfg *Config) validate() error {
	switch cfg.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("%w: unsupported driver %q", ErrInvalidDatabaseConfig, cfg.Database.Driver)
	}
	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return fmt.Errorf("%w: dsn is required", ErrInvalidDatabaseConfig)
	}
	if cfg.Server.Address == "" || cfg.Server.RequestTimeout <= 0 {
		return ErrInvalidServerConfig
	}
	if _, err := zerolog.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLogConfig, err)
	}
	return nil
}
