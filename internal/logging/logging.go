// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

const (
	FormatJSON = "json"
	FormatText = "text"
	FormatTint = "tint"
)

type Options struct {
	Writer    io.Writer
	Level     string
	Format    string
	AddSource bool
}

// New returns a JSON, plain text or colored console logger. Unknown formats
// fall back to the colored console.
func New(opts Options) *slog.Logger {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	level := ParseLevel(opts.Level)

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case FormatJSON:
		handler = slog.NewJSONHandler(opts.Writer, &slog.HandlerOptions{
			Level:     level,
			AddSource: opts.AddSource,
		})
	case FormatText:
		handler = slog.NewTextHandler(opts.Writer, &slog.HandlerOptions{
			Level:     level,
			AddSource: opts.AddSource,
		})
	default:
		handler = tint.NewHandler(opts.Writer, &tint.Options{
			Level:      level,
			AddSource:  opts.AddSource,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}

	return slog.New(handler)
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
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
