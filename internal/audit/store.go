package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // sqlite driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// StoreSink persists audit events to a local SQLite database.
type StoreSink struct {
	db   *sql.DB
	path string
}

// OpenStore opens (or creates) the audit database and runs pending
// migrations. Use ":memory:" for an in-memory database.
func OpenStore(path string) (*StoreSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &StoreSink{db: db, path: path}, nil
}

// migrate runs all pending migrations against the audit database.
func migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run audit migrations: %w", err)
	}
	return nil
}

// Close closes the audit database.
func (s *StoreSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Record persists one audit event. A zero ID is assigned a fresh UUID.
func (s *StoreSink) Record(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, sheet_id, session_id, category, op_count, actor, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.SheetID, ev.SessionID, string(ev.Category), ev.Count, ev.Actor, ev.At.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for a sheet, newest first.
func (s *StoreSink) Recent(ctx context.Context, sheetID string, limit int) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sheet_id, session_id, category, op_count, actor, recorded_at
		 FROM audit_events WHERE sheet_id = ? ORDER BY recorded_at DESC LIMIT ?`,
		sheetID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []Event
	for rows.Next() {
		var ev Event
		var cat string
		var at time.Time
		if err := rows.Scan(&ev.ID, &ev.SheetID, &ev.SessionID, &cat, &ev.Count, &ev.Actor, &at); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Category = Category(cat)
		ev.At = at.UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit events: %w", err)
	}
	return events, nil
}

var _ Sink = (*StoreSink)(nil)
