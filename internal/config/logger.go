package config

import (
	"io"
	"log/slog"
	"os"
)

func NewLogger(env, instanceID string) *slog.Logger {
	return newLogger(os.Stdout, env, instanceID)
}

func newLogger(w io.Writer, env, instanceID string) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		AddSource: env == "development",
	}

	if env == "production" {
		opts.Level = slog.LevelInfo
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", "alerthub"),
		slog.String("instance", instanceID),
	)
}
