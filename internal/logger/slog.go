package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// ParseLevel maps a LOG_LEVEL string to a slog.Level. Unknown strings
// default to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Build constructs the process logger. format "text" selects the
// charmbracelet/log handler for human-readable output; anything else yields
// slog's JSON handler. File:line is included only at debug level.
func Build(level, format string) *slog.Logger {
	return BuildTo(os.Stdout, level, format)
}

// BuildTo is Build with an explicit writer.
func BuildTo(w io.Writer, level, format string) *slog.Logger {
	l := ParseLevel(level)

	if strings.EqualFold(format, "text") {
		h := charmlog.NewWithOptions(w, charmlog.Options{
			Level:           charmLevel(l),
			ReportTimestamp: true,
			ReportCaller:    l == slog.LevelDebug,
		})
		return slog.New(h)
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     l,
		AddSource: l == slog.LevelDebug,
	}))
}

func charmLevel(l slog.Level) charmlog.Level {
	switch l {
	case slog.LevelDebug:
		return charmlog.DebugLevel
	case slog.LevelWarn:
		return charmlog.WarnLevel
	case slog.LevelError:
		return charmlog.ErrorLevel
	default:
		return charmlog.InfoLevel
	}
}
