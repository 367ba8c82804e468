package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel(" Warning "))
	assert.Equal(t, ERROR, ParseLevel("error"))
	assert.Equal(t, INFO, ParseLevel(""))
	assert.Equal(t, INFO, ParseLevel("verbose"))
}

func TestContextFieldsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewFromZap(zap.New(core)).Named("engine")

	ctx := WithTraceID(context.Background(), "t-1")
	ctx = WithFields(ctx, zap.String("order_hash", "0xabc"))
	logger.Warn(ctx, "terminal order mutation", zap.Int("n", 1))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "engine", fields["component"])
	assert.Equal(t, "t-1", fields["trace_id"])
	assert.Equal(t, "0xabc", fields["order_hash"])
	assert.EqualValues(t, 1, fields["n"])
}
