// Package config loads LeapGrid configuration from defaults, a YAML config
// file, LEAPGRID_-prefixed environment variables, and CLI flags, in
// ascending precedence.
package config

import (
	"fmt"

	"github.com/leapstack-labs/leapgrid/internal/dialect"
	"github.com/leapstack-labs/leapgrid/internal/storage"
)

// Default configuration values.
const (
	DefaultSheetsDir = "sheets"
	DefaultAuditPath = "leapgrid-audit.db"
	DefaultPort      = 8844
	DefaultDriver    = "sqlite"
)

// Config is the full service configuration.
type Config struct {
	// SheetsDir is the directory holding sheet manifest YAML files
	SheetsDir string `koanf:"sheets_dir"`

	// Port is the HTTP listen port
	Port int `koanf:"port"`

	// AuditPath is the path of the local audit database; empty disables the
	// store sink and audit events go to the log instead
	AuditPath string `koanf:"audit_path"`

	// Watch enables hot reload of sheet manifests
	Watch bool `koanf:"watch"`

	// Verbose enables debug logging
	Verbose bool `koanf:"verbose"`

	// Target is the backend database configuration
	Target storage.Config `koanf:"target"`
}

// Validate checks the loaded configuration.
func (c *Config) Validate() error {
	if c.SheetsDir == "" {
		return fmt.Errorf("sheets_dir is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}
	if _, ok := dialect.Get(c.Target.Driver); !ok {
		return fmt.Errorf("unknown target driver %q (available: %v)", c.Target.Driver, dialect.Names())
	}
	return nil
}
