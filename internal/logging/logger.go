package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates the application logger.
// It writes to Stderr so volume summaries printed on Stdout stay clean,
// and standardizes the "error" key to "err".
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *slog.Logger) *slog.Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

// ParseLevel maps a config/flag string to a slog level. Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
