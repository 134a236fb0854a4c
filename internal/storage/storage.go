// Package storage implements the storage-execution boundary over
// database/sql. It supports SQLite, DuckDB and Postgres backends and owns
// all statement construction for the key-addressed save path (fetch, update,
// delete, bulk merge); the read path receives its statements pre-rendered by
// the predicate package.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	_ "modernc.org/sqlite"              // sqlite driver

	"github.com/leapstack-labs/leapgrid/internal/dialect"
	"github.com/leapstack-labs/leapgrid/internal/schema"
)

// Config holds the configuration for connecting to a backend database.
type Config struct {
	// Driver selects the backend: sqlite, duckdb or postgres
	Driver string `koanf:"driver"`

	// Path is the file path for file-based backends; ":memory:" is accepted
	Path string `koanf:"path"`

	// Network backends
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Database string `koanf:"database"`
	Username string `koanf:"user"`
	Password string `koanf:"password"`

	// Options contains additional driver-specific options (e.g. sslmode)
	Options map[string]string `koanf:"options"`
}

// Executor is the read-side execution interface consumed by the query
// engine.
type Executor interface {
	// Count executes a scalar count query.
	Count(ctx context.Context, query string, args []any) (int64, error)

	// Select executes a data query and maps the result onto typed rows
	// using the sheet's declared column types.
	Select(ctx context.Context, sheet *schema.SheetSchema, query string, args []any) ([]schema.Row, error)

	// Begin opens the transaction scope used by a save batch.
	Begin(ctx context.Context) (Tx, error)
}

// Tx is the transactional execution interface consumed by the save
// orchestrator. All mutations of one batch run inside a single Tx.
type Tx interface {
	// FetchOne retrieves the current persisted row addressed by key,
	// locking it against concurrent writers where the backend supports
	// row-level locking.
	FetchOne(ctx context.Context, sheet *schema.SheetSchema, key schema.Row) (schema.Row, bool, error)

	// Update overwrites the given columns of the row addressed by key and
	// returns the affected row count.
	Update(ctx context.Context, sheet *schema.SheetSchema, key, set schema.Row) (int64, error)

	// Delete removes the row addressed by key and returns the affected row
	// count.
	Delete(ctx context.Context, sheet *schema.SheetSchema, key schema.Row) (int64, error)

	// BulkMerge stages the rows and merges them into the target table as a
	// single bulk operation.
	BulkMerge(ctx context.Context, sheet *schema.SheetSchema, rows []schema.Row) error

	Commit() error
	Rollback() error
}

// buildPostgresDSN constructs a keyword/value DSN for the pgx stdlib driver.
func buildPostgresDSN(cfg Config) string {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslmode := "disable"
	if v, ok := cfg.Options["sslmode"]; ok {
		sslmode = v
	}

	parts := []string{
		fmt.Sprintf("host=%s", host),
		fmt.Sprintf("port=%d", port),
		fmt.Sprintf("dbname=%s", cfg.Database),
		fmt.Sprintf("sslmode=%s", sslmode),
	}
	if cfg.Username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", cfg.Username))
	}
	if cfg.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", cfg.Password))
	}
	return strings.Join(parts, " ")
}

// driverDSN resolves the database/sql driver name and DSN for a config.
func driverDSN(cfg Config) (driver, dsn string, err error) {
	switch cfg.Driver {
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		return "sqlite", path, nil
	case "duckdb":
		return "duckdb", cfg.Path, nil
	case "postgres":
		return "pgx", buildPostgresDSN(cfg), nil
	default:
		return "", "", fmt.Errorf("unknown storage driver %q (available: %s)", cfg.Driver, strings.Join(dialect.Names(), ", "))
	}
}

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	driver, dsn, err := driverDSN(cfg)
	if err != nil {
		return nil, err
	}

	d, ok := dialect.Get(cfg.Driver)
	if !ok {
		return nil, fmt.Errorf("no dialect registered for driver %q", cfg.Driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	logger.Debug("storage connected", "driver", cfg.Driver)
	return &Store{db: db, d: d, logger: logger}, nil
}

// NewWithDB wraps an existing connection pool. Used by tests and callers
// that manage the pool themselves.
func NewWithDB(db *sql.DB, d *dialect.Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{db: db, d: d, logger: logger}
}
