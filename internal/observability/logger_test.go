package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufLogger(t *testing.T, cfg config.LoggingConfig) (*slog.Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	return NewLoggerWithWriter(cfg, &buf), &buf
}

func TestNewLoggerWithWriter_Formats(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		logger, buf := newBufLogger(t, config.LoggingConfig{Level: "info", Format: "json"})
		logger.Info("room configured", slog.String("room", "1001"))

		var parsed map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
		assert.Equal(t, "room configured", parsed["msg"])
		assert.Equal(t, "1001", parsed["room"])
	})

	t.Run("text", func(t *testing.T) {
		logger, buf := newBufLogger(t, config.LoggingConfig{Level: "info", Format: "text"})
		logger.Info("room configured", slog.String("room", "1001"))

		assert.Contains(t, buf.String(), "room=1001")
	})

	t.Run("unknown format defaults to json", func(t *testing.T) {
		logger, buf := newBufLogger(t, config.LoggingConfig{Level: "info", Format: "banana"})
		logger.Info("hello")

		var parsed map[string]any
		assert.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	})
}

func TestNewLoggerWithWriter_LevelFiltering(t *testing.T) {
	tests := []struct {
		configLevel string
		logLevel    slog.Level
		shouldLog   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"info", slog.LevelDebug, false},
		{"info", slog.LevelInfo, true},
		{"warn", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, true},
		{"error", slog.LevelWarn, false},
		{"error", slog.LevelError, true},
		{"bogus", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		logger, buf := newBufLogger(t, config.LoggingConfig{Level: tt.configLevel, Format: "json"})
		logger.Log(context.Background(), tt.logLevel, "probe")

		if tt.shouldLog {
			assert.Contains(t, buf.String(), "probe", "%s at %v", tt.configLevel, tt.logLevel)
		} else {
			assert.Empty(t, buf.String(), "%s at %v", tt.configLevel, tt.logLevel)
		}
	}
}

func TestNewLoggerWithWriter_RedactsSecrets(t *testing.T) {
	logger, buf := newBufLogger(t, config.LoggingConfig{Level: "info", Format: "json"})

	cfg := config.SignallingConfig{
		HTTPURL:     "http://gateway.local:8088/janus",
		AdminSecret: "janusoverlord",
		RoomPin:     "0451",
	}
	logger.Info("signalling configured", slog.Any("config", cfg))

	out := buf.String()
	assert.NotContains(t, out, "janusoverlord")
	assert.NotContains(t, out, "0451")
	assert.Contains(t, out, "gateway.local")
}

func TestNewLoggerWithWriter_TimeFormat(t *testing.T) {
	logger, buf := newBufLogger(t, config.LoggingConfig{
		Level:      "info",
		Format:     "json",
		TimeFormat: "2006-01-02",
	})
	logger.Info("stamped")

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))

	stamp, ok := parsed["time"].(string)
	require.True(t, ok)
	_, err := time.Parse("2006-01-02", stamp)
	assert.NoError(t, err)
}

func TestRequestLoggingToggle(t *testing.T) {
	t.Cleanup(func() { SetRequestLoggingEnabled(true) })

	assert.True(t, IsRequestLoggingEnabled(), "enabled by default")

	SetRequestLoggingEnabled(false)
	assert.False(t, IsRequestLoggingEnabled())

	SetRequestLoggingEnabled(true)
	assert.True(t, IsRequestLoggingEnabled())
}
