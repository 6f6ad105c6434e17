package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output keeps log aggregation happy;
// services receive this via their WithLogger options.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
