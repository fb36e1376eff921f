package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format, development uses colorized text on a
// terminal and plain text otherwise. Logs go to stderr so command output
// on stdout stays clean.
func NewLogger(env string) *slog.Logger {
	return newLogger(env, os.Stderr, isatty.IsTerminal(os.Stderr.Fd()))
}

func newLogger(env string, w io.Writer, terminal bool) *slog.Logger {
	if env == "production" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
		NoColor:    !terminal,
	}))
}
