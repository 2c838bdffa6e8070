package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContextFallsBackToDiscard(t *testing.T) {
	logger := FromContext(context.Background())
	assert.NotNil(t, logger)
	assert.False(t, logger.Enabled(context.Background(), slog.LevelError))
}

func TestWithLoggerRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "text", &buf)
	ctx := WithLogger(context.Background(), logger)

	FromContext(ctx).Info("hello", "k", 1)
	assert.Contains(t, buf.String(), "hello")
	assert.Contains(t, buf.String(), "k=1")
}

func TestWithLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	parent := New("debug", "json", &buf)
	child := WithLevel(parent, slog.LevelWarn)

	child.Info("dropped")
	child.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")

	parent.Debug("parent still debug")
	assert.Contains(t, buf.String(), "parent still debug")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
