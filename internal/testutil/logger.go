// Package testutil provides shared test helpers.
package testutil

import (
	"log/slog"
	"testing"
)

// Logger returns a debug-level logger that writes through t.Log, so log
// output only surfaces on failure or with -v.
func Logger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(logWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type logWriter struct {
	t testing.TB
}

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
