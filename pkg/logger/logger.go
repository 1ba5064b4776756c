package logger

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Cron adapts a slog logger to the cron.Logger interface, tagged with the
// component name.
func Cron(base *slog.Logger, component string) cron.Logger {
	if base == nil {
		base = slog.Default()
	}
	return cronLogger{log: base.With("component", component)}
}

type cronLogger struct {
	log *slog.Logger
}

// Info is used by cron for routine scheduling chatter, so it maps to debug.
func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
