package app

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewLogger(t *testing.T) {
	testCases := []struct {
		name      string
		level     string
		format    string
		enabled   slog.Level
		disabled  slog.Level
		wantJSON  bool
		wantTexts []string
	}{
		{name: "debug text", level: "debug", format: "text", enabled: slog.LevelDebug, disabled: slog.LevelDebug - 1, wantTexts: []string{"level=DEBUG"}},
		{name: "upper case warn", level: "WARN", format: "text", enabled: slog.LevelWarn, disabled: slog.LevelInfo},
		{name: "unknown level falls back to info", level: "loud", format: "text", enabled: slog.LevelInfo, disabled: slog.LevelDebug},
		{name: "json with source at debug", level: "debug", format: "json", enabled: slog.LevelDebug, disabled: slog.LevelDebug - 1, wantJSON: true, wantTexts: []string{`"source"`}},
		{name: "json error", level: "error", format: "JSON", enabled: slog.LevelError, disabled: slog.LevelWarn, wantJSON: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := newLogger(&Config{LogLevel: tc.level, LogFormat: tc.format}, buf)

			ctx := context.Background()
			assert.True(t, logger.Enabled(ctx, tc.enabled))
			assert.False(t, logger.Enabled(ctx, tc.disabled))

			logger.Log(ctx, tc.enabled, "probe")
			if tc.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"probe"`)
			} else {
				assert.Contains(t, buf.String(), "msg=probe")
			}
			for _, want := range tc.wantTexts {
				assert.Contains(t, buf.String(), want)
			}
		})
	}
}
