package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AntonStoeckl/book-lending-go/lending/service"
)

// ParseLogLevel maps debug, info, warn and error to their slog levels.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", level)
	}
}

// NewLogHandler creates the slog handler described by the log settings.
func (c LogConfig) NewLogHandler(w io.Writer) slog.Handler {
	level, _ := ParseLogLevel(c.Level) // validated by Load
	options := &slog.HandlerOptions{Level: level}

	if c.Format == "json" {
		return slog.NewJSONHandler(w, options)
	}

	return slog.NewTextHandler(w, options)
}

// ServiceOptions returns the lending service options for the retry and reconcile settings.
func (c Config) ServiceOptions() []service.Option {
	return []service.Option{
		service.WithRetryOptions(
			service.WithMaxAttempts(c.Retry.MaxAttempts),
			service.WithBaseDelay(c.Retry.BaseDelay),
			service.WithJitterFactor(c.Retry.JitterFactor),
		),
		service.WithReconcileTimeout(c.ReconcileTimeout),
	}
}
