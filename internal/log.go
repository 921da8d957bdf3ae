package internal

import (
	"context"
	"log/slog"
)

// LevelTrace is used for per-packet logging, below [slog.LevelDebug].
const LevelTrace slog.Level = slog.LevelDebug - 2

// LogEnabled reports whether l is non-nil and logs at lvl.
func LogEnabled(l *slog.Logger, lvl slog.Level) bool {
	return l != nil && l.Handler().Enabled(context.Background(), lvl)
}

// LogAttrs is the helper used by all package loggers. A nil logger discards
// the record so that zero value types need no logger configured.
func LogAttrs(l *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if l != nil {
		l.LogAttrs(context.Background(), level, msg, attrs...)
	}
}
