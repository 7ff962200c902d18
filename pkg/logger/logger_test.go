package logger

import (
	"testing"

	"reaction_timer_backend/internal/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestResolveLevel(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Mode: "debug"}}
	level, bad := resolveLevel(cfg)
	assert.Equal(t, zapcore.DebugLevel, level)
	assert.Empty(t, bad)

	cfg.Server.Mode = "release"
	level, _ = resolveLevel(cfg)
	assert.Equal(t, zapcore.InfoLevel, level)

	cfg.Log.Level = "warn"
	level, _ = resolveLevel(cfg)
	assert.Equal(t, zapcore.WarnLevel, level)

	cfg.Log.Level = "loud"
	level, bad = resolveLevel(cfg)
	assert.Equal(t, zapcore.InfoLevel, level)
	assert.Equal(t, "loud", bad)
}

func TestInitLoggerConsoleOnly(t *testing.T) {
	t.Cleanup(func() { Log = zap.NewNop() })
	InitLogger(&config.Config{Server: config.ServerConfig{Mode: "release"}})
	assert.NotNil(t, Log)
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
}
