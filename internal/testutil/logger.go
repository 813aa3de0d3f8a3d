// Package testutil provides shared test helpers: loggers that write to the
// test log and particle fixtures.
package testutil

import (
	"log/slog"
	"testing"
)

// NewTestLogger returns a logger that writes to t.Log().
// Logs only appear on test failure or when running with -v.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(testWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// NewRankLogger is NewTestLogger tagged with a rank attribute, for tests
// that run several ranks in one process.
func NewRankLogger(t testing.TB, rank int) *slog.Logger {
	t.Helper()
	return NewTestLogger(t).With(slog.Int("rank", rank))
}

type testWriter struct {
	t testing.TB
}

func (w testWriter) Write(p []byte) (n int, err error) {
	w.t.Helper()
	w.t.Log(string(p))
	return len(p), nil
}
