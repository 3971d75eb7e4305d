// Package logging builds the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/meincms/apiserver/config"
)

const serviceName = "apiserver"

// New returns a logger writing to stdout.
//
// Local and dev environments log human-readable text at debug level unless
// LOG_LEVEL says otherwise; everything else logs JSON.
func New(cfg config.LoggingConfig, env string) *slog.Logger {
	return NewWithWriter(os.Stdout, cfg, env)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, env string) *slog.Logger {
	level := parseLevel(cfg.Level)
	if cfg.Level == "" && (env == config.EnvLocal || env == config.EnvDev) {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if useText(cfg.Format, env) {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", serviceName))
}

func useText(format, env string) bool {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "text":
		return true
	case "json":
		return false
	}
	return env == config.EnvLocal || env == config.EnvDev
}

func parseLevel(level string) slog.Level {
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
