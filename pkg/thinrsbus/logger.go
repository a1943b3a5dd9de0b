package thinrsbus

import (
	"log/slog"
	"slices"
)

// Logger is the logging capability a Receiver writes to.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// withAttrs returns a Logger that adds attrs to every record.
func withAttrs(l Logger, attrs ...any) Logger {
	if sl, ok := l.(*slog.Logger); ok {
		return sl.With(attrs...)
	}
	return taggedLogger{inner: l, attrs: attrs}
}

type taggedLogger struct {
	inner Logger
	attrs []any
}

func (t taggedLogger) with(args []any) []any {
	return append(slices.Clip(t.attrs), args...)
}

func (t taggedLogger) Debug(msg string, args ...any) { t.inner.Debug(msg, t.with(args)...) }
func (t taggedLogger) Info(msg string, args ...any)  { t.inner.Info(msg, t.with(args)...) }
func (t taggedLogger) Warn(msg string, args ...any)  { t.inner.Warn(msg, t.with(args)...) }
func (t taggedLogger) Error(msg string, args ...any) { t.inner.Error(msg, t.with(args)...) }
