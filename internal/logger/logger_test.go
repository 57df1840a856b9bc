package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFormatsMessages(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewWithZap(zap.New(core))

	l.Info("fetched %d variations", 12)
	l.Warn("scan incomplete after %d pages", 3)
	l.Debug("cursor %q", "abc")

	entries := logs.AllUntimed()
	assert.Len(t, entries, 3)
	assert.Equal(t, "fetched 12 variations", entries[0].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, `cursor "abc"`, entries[2].Message)
}

func TestNewFallsBackOnUnknownLevel(t *testing.T) {
	core := New("chatty", "production").sugar.Desugar().Core()
	assert.True(t, core.Enabled(zapcore.InfoLevel))
	assert.False(t, core.Enabled(zapcore.DebugLevel))
}
