package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAppliesLevelAndFormat(t *testing.T) {
	l, err := New(Config{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)
	assert.Equal(t, "debug", l.GetLevel().String())
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(Config{Level: "not-a-level"})
	assert.Error(t, err)
}

func TestWithContextInjectsFields(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)

	ctx := context.Background()
	ctx = ContextWithTrace(ctx, "trace-123")
	ctx = ContextWithUser(ctx, "user-1", "analyst")

	entry := l.WithContext(ctx)
	assert.Equal(t, "trace-123", entry.Data["trace_id"])
	assert.Equal(t, "user-1", entry.Data["user_id"])
	assert.Equal(t, "analyst", entry.Data["role"])
}

func TestWithContextOmitsAbsentFields(t *testing.T) {
	l, err := New(Config{})
	require.NoError(t, err)

	entry := l.WithContext(context.Background())
	_, ok := entry.Data["trace_id"]
	assert.False(t, ok)
}
