package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_LevelParsing(t *testing.T) {
	tests := []struct {
		name        string
		level       string
		logAtDebug  bool
		expectDebug bool
	}{
		{name: "debug_level_emits_debug", level: "debug", expectDebug: true},
		{name: "info_level_drops_debug", level: "info", expectDebug: false},
		{name: "uppercase_is_accepted", level: "WARN", expectDebug: false},
		{name: "invalid_falls_back_to_info", level: "verbose", expectDebug: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := setup(tt.level, &buf)

			log.Debug("debug message")
			if tt.expectDebug {
				assert.Contains(t, buf.String(), "debug message")
			} else {
				assert.NotContains(t, buf.String(), "debug message")
			}
		})
	}
}

func TestSetup_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	log := setup("info", &buf)

	log.Info("hello", "task_id", "abc")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello", record["msg"])
	assert.Equal(t, "abc", record["task_id"])
}

func TestFromContext_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), log)
	assert.Same(t, log, FromContext(ctx))
}

func TestFromContext_MissingLoggerReturnsDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}

func TestFromContextOrDefault(t *testing.T) {
	var buf bytes.Buffer
	def := slog.New(slog.NewJSONHandler(&buf, nil))

	// No logger in context: the provided default wins.
	assert.Same(t, def, FromContextOrDefault(context.Background(), def))

	// Logger in context: the context logger wins.
	inCtx := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := WithLogger(context.Background(), inCtx)
	assert.Same(t, inCtx, FromContextOrDefault(ctx, def))

	// Neither: process default.
	assert.Same(t, slog.Default(), FromContextOrDefault(context.Background(), nil))
}
