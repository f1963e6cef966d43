package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
)

// serviceName is attached to every entry.
const serviceName = "edusat-bridge"

const logFileMode = 0o640

// Logger is the bridge's structured logger.
//
// Every entry carries service and version. Components derive their own
// logger with Component so their entries can be filtered.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of the config.
//
// An unusable log file does not stop the bridge: entries go to stderr and
// the first entry explains why.
func New(cfg config.LoggingConfig, version string) *Logger {
	var (
		out     io.Writer = os.Stdout
		fileErr error
	)
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		out = os.Stderr
	case "file":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFileMode)
		if err != nil {
			out, fileErr = os.Stderr, err
		} else {
			out = f
		}
	}

	logger := &Logger{Logger: slog.New(newHandler(out, cfg, version))}
	if fileErr != nil {
		logger.Warn("log file unavailable, writing to stderr", "path", cfg.File, "error", fileErr)
	}
	return logger
}

// newHandler returns the JSON or text handler for cfg, writing to w.
func newHandler(w io.Writer, cfg config.LoggingConfig, version string) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return h.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
}

// parseLevel maps debug, info, warn (or warning) and error to slog levels.
// Anything else is info.
func parseLevel(level string) slog.Level {
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

// With returns a logger that adds args to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a logger tagged with component=name.
//
//	log.Component("journal").Warn("queue full")
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the logger used before the configuration has been read:
// JSON on stdout at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}
