package greenlight

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger returns the default console logger for workflow runs: colorized
// when stdout is a terminal, plain text otherwise. Executions attach their
// execution_id to every record they emit through it.
func NewLogger() *slog.Logger {
	stdout := os.Stdout
	return slog.New(tint.NewHandler(stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.RFC3339,
		NoColor:    !isatty.IsTerminal(stdout.Fd()),
	}))
}

// NewJSONLogger returns a logger emitting one JSON object per record, for
// deployments that ship logs to an aggregator.
func NewJSONLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
