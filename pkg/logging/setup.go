package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/S1riyS/hfs/pkg/logging/slogpretty"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// NewLogger builds the process logger. A non-empty File sends JSON records
// to a rotated log file instead of stdout.
func NewLogger(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	if opts.File != "" {
		var out io.Writer = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		return slog.New(slog.NewJSONHandler(out, handlerOpts))
	}

	if opts.Format == "pretty" {
		pretty := slogpretty.PrettyHandlerOptions{SlogOpts: handlerOpts}
		return slog.New(pretty.NewPrettyHandler(os.Stdout))
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, handlerOpts))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
