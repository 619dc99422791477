package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMessage = "test message"

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNewWithWriterLevels(t *testing.T) {
	tests := []struct {
		name          string
		level         string
		expectedLevel zerolog.Level
	}{
		{name: "debug", level: "debug", expectedLevel: zerolog.DebugLevel},
		{name: "warn", level: "warn", expectedLevel: zerolog.WarnLevel},
		{name: "invalid_defaults_to_info", level: "loud", expectedLevel: zerolog.InfoLevel},
		{name: "empty_defaults_to_info", level: "", expectedLevel: zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewWithWriter(&buf, tt.level, false, nil)
			assert.Equal(t, tt.expectedLevel, l.zlog.GetLevel())
		})
	}
}

func TestLogEventFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug", false, nil)

	l.Info().
		Str("tenant", "acme").
		Int("count", 3).
		Int64("bytes", 42).
		Bool("hit", true).
		Dur("latency", 5*time.Millisecond).
		Err(errors.New("boom")).
		Msg(testMessage)

	entry := decodeLine(t, &buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, testMessage, entry["message"])
	assert.Equal(t, "acme", entry["tenant"])
	assert.InDelta(t, 3, entry["count"], 0)
	assert.InDelta(t, 42, entry["bytes"], 0)
	assert.Equal(t, true, entry["hit"])
	assert.Equal(t, "boom", entry["error"])
	assert.Contains(t, entry, "caller")
}

func TestLogEventMasksSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", false, nil)

	l.Info().
		Str("password", "hunter2").
		Str("mongodb_uri", "mongodb://admin:s3cret@db:27017/?authSource=admin").
		Interface("account", map[string]any{"name": "A", "password": "p"}).
		Msg("masked")

	entry := decodeLine(t, &buf)
	assert.Equal(t, DefaultMaskValue, entry["password"])
	assert.Equal(t, "mongodb://admin:***@db:27017/?authSource=admin", entry["mongodb_uri"])
	account, ok := entry["account"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A", account["name"])
	assert.Equal(t, DefaultMaskValue, account["password"])
}

func TestWithFieldsFiltersAndAttaches(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info", false, nil)

	l.WithFields(map[string]any{"component": "cache", "token": "abc"}).Warn().Msg("fields")

	entry := decodeLine(t, &buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "cache", entry["component"])
	assert.Equal(t, DefaultMaskValue, entry["token"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "error", false, nil)

	l.Info().Str("k", "v").Msg("dropped")
	l.Debug().Msgf("dropped %d", 1)
	assert.Zero(t, buf.Len())

	l.Error().Msgf("kept %d", 2)
	assert.Equal(t, "kept 2", decodeLine(t, &buf)["message"])
}

func TestWithContextNonContextReturnsSameLogger(t *testing.T) {
	l := NewWithWriter(&bytes.Buffer{}, "info", false, nil)
	assert.Same(t, l, l.WithContext("not a context"))
}

func TestWithContextInvokesSeverityHook(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "debug", false, nil)

	var seen []zerolog.Level
	ctx := WithSeverityHook(context.Background(), func(level zerolog.Level) {
		seen = append(seen, level)
	})

	ctxLogger := l.WithContext(ctx)
	ctxLogger.Warn().Msg("one")
	ctxLogger.Error().Msg("two")

	assert.Equal(t, []zerolog.Level{zerolog.WarnLevel, zerolog.ErrorLevel}, seen)
}

func TestWithContextUsesContextLogger(t *testing.T) {
	var base, scoped bytes.Buffer
	l := NewWithWriter(&base, "info", false, nil)

	zl := zerolog.New(&scoped).With().Str("request_id", "req-1").Logger()
	ctx := zl.WithContext(context.Background())

	l.WithContext(ctx).Info().Msg("scoped")

	assert.Zero(t, base.Len())
	assert.Equal(t, "req-1", decodeLine(t, &scoped)["request_id"])
}
