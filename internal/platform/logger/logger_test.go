package logger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phrazzld/codescope-api/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		level  slog.Level
		wantOK bool
	}{
		{"debug", "debug", slog.LevelDebug, true},
		{"mixed case", "WaRn", slog.LevelWarn, true},
		{"empty defaults to info", "", slog.LevelInfo, true},
		{"fatal maps to error", "fatal", slog.LevelError, true},
		{"unknown", "verbose", slog.LevelInfo, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			level, ok := ParseLevel(tc.input)
			assert.Equal(t, tc.level, level)
			assert.Equal(t, tc.wantOK, ok)
		})
	}
}

func TestSetup_WritesJSONAtConfiguredLevel(t *testing.T) {
	t.Setenv("CI", "")
	t.Setenv("GITHUB_ACTIONS", "")
	t.Setenv("GITLAB_CI", "")

	original := slog.Default()
	defer slog.SetDefault(original)

	buf := &TestLogBuffer{}
	logger, err := SetupWriter(config.ServerConfig{LogLevel: "warn"}, buf)
	require.NoError(t, err)
	require.NotNil(t, logger)

	logger.Info("hidden")
	logger.Warn("visible", "task_id", "abc")

	entries, err := buf.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "visible", entries[0].Msg())
	assert.Equal(t, "abc", entries[0]["task_id"])
	assert.Same(t, logger, slog.Default())
}

func TestSetup_CIHandlerAddsMetadata(t *testing.T) {
	t.Setenv("CI", "true")
	t.Setenv("GITHUB_SHA", "deadbeef")

	original := slog.Default()
	defer slog.SetDefault(original)

	buf := &TestLogBuffer{}
	logger, err := SetupWriter(config.ServerConfig{LogLevel: "info"}, buf)
	require.NoError(t, err)

	logger.Info("hello")

	AssertLogContains(t, buf, `"ci_commit":"deadbeef"`)
}

func TestFromContext(t *testing.T) {
	scoped, buf := NewTestLogger(t)
	fallback := slog.New(slog.NewJSONHandler(&TestLogBuffer{}, nil))

	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx))
	assert.Same(t, scoped, FromContextOrDefault(ctx, fallback))
	assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))
	assert.Same(t, slog.Default(), FromContextOrDefault(context.Background(), nil))

	// A nil logger leaves the context untouched
	assert.Equal(t, context.Background(), WithLogger(context.Background(), nil))

	FromContext(ctx).Info("scoped message", "worker_id", 2)
	AssertLogContains(t, buf, "scoped message")
	require.Len(t, buf.Find("scoped message"), 1)
	assert.EqualValues(t, 2, buf.Find("scoped message")[0]["worker_id"])
}
