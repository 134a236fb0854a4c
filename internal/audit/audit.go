// Package audit records save activity: one event per non-empty operation
// category of a save batch. Emission is best-effort from the orchestrator's
// perspective; a failing sink never fails the save.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Category is the operation category an event describes.
type Category string

const (
	CategoryInsert Category = "insert"
	CategoryUpdate Category = "update"
	CategoryDelete Category = "delete"
)

// Event is one audit record.
type Event struct {
	ID        string
	SheetID   string
	SessionID string
	Category  Category
	Count     int
	Actor     string
	At        time.Time
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// LogSink writes audit events to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &LogSink{logger: logger}
}

// Record logs the event.
func (s *LogSink) Record(_ context.Context, ev Event) error {
	s.logger.Info("audit",
		"sheet", ev.SheetID,
		"session", ev.SessionID,
		"category", string(ev.Category),
		"count", ev.Count,
		"actor", ev.Actor,
		"at", ev.At,
	)
	return nil
}

var _ Sink = (*LogSink)(nil)
