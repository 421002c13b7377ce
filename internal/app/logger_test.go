package app

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLoggerFormat(t *testing.T) {
	prod := &Config{AppEnv: "production", LogFormat: "pretty"}
	_, ok := NewLogger(prod).Handler().(*slog.JSONHandler)
	require.True(t, ok, "production forces JSON regardless of LOG_FORMAT")

	dev := &Config{AppEnv: "development", LogFormat: "pretty"}
	_, ok = NewLogger(dev).Handler().(*slog.TextHandler)
	require.True(t, ok)

	devJSON := &Config{AppEnv: "development", LogFormat: "json"}
	_, ok = NewLogger(devJSON).Handler().(*slog.JSONHandler)
	require.True(t, ok)

	_, ok = NewLogger(nil).Handler().(*slog.TextHandler)
	require.True(t, ok)
}
