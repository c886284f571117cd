package app

import (
	"io"
	"log/slog"
	"strings"
)

// newLogger builds the App's own logger from the configured level and
// format. The global logger is left alone so several Apps can coexist, as
// they do in tests. Unknown levels fall back to info.
func newLogger(cfg *Config, outW io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(cfg.LogLevel))); err != nil {
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
		// Call sites only help when chasing a module at debug level.
		AddSource: level <= slog.LevelDebug && cfg.LogFormat == "json",
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		handler = slog.NewJSONHandler(outW, handlerOpts)
	default:
		handler = slog.NewTextHandler(outW, handlerOpts)
	}

	return slog.New(handler)
}
