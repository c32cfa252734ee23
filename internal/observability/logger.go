package observability

import (
	"context"
	"io"
	"log/slog"
	"strings"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/couchcryptid/stammtisch-map-service/internal/config"
)

// NewLogger builds the service logger from LOG_LEVEL, LOG_FORMAT and LOG_FILE
// and sets it as the slog default. Output goes to stdout unless LOG_FILE names
// a file, which is then rotated by size.
func NewLogger(cfg *config.Config) *slog.Logger {
	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if cfg.LogFile == "" {
		return logger
	}

	rotated := newLogger(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}, handlerLevel(logger.Handler()), cfg.LogFormat)
	slog.SetDefault(rotated)
	return rotated
}

func newLogger(out io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(out, opts)
	} else {
		h = slog.NewJSONHandler(out, opts)
	}
	return slog.New(h)
}

// handlerLevel returns the lowest level h is enabled for.
func handlerLevel(h slog.Handler) slog.Level {
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn} {
		if h.Enabled(context.Background(), l) {
			return l
		}
	}
	return slog.LevelError
}
