package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup configures the global logger based on the environment.
// Logs go to stderr so that report output on stdout stays clean for piping.
// It returns the logger instance, but also sets it as the default global logger.
func Setup(env string, verbose bool) *slog.Logger {
	return SetupWriter(os.Stderr, env, verbose)
}

// SetupWriter is Setup with an explicit destination.
func SetupWriter(w io.Writer, env string, verbose bool) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		// JSON for machine parsing when run from CI/CD or cron
		if verbose {
			opts.Level = slog.LevelDebug
		}
		handler = slog.NewJSONHandler(w, opts)
	} else {
		// Text for human readability in development
		opts.Level = slog.LevelDebug
		if !verbose {
			opts.Level = slog.LevelInfo
		}
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler).With("app", "opsctl")
	slog.SetDefault(logger)

	return logger
}
