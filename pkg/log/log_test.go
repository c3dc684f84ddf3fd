package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/dukex/pdfflow/pkg/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for input, expected := range tests {
		assert.Equal(t, expected, log.ParseLevel(input), input)
	}
}

func TestNew_JSON(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := log.New(&buf, "debug", "json")
	logger.Debug("hello", "module", "test")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"module":"test"`)
}

func TestNew_TextFiltersLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := log.New(&buf, "warn", "text")
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
