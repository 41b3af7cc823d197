package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestZerologHandler_LevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewZerologHandler(zerolog.New(&buf).Level(zerolog.InfoLevel)))

	logger.Debug("dropped")
	assert.Empty(t, buf.String())

	logger.Warn("caller missing", "id", "42", "attempt", 2)
	rec := decodeLine(t, &buf)
	assert.Equal(t, "warn", rec["level"])
	assert.Equal(t, "caller missing", rec["message"])
	assert.Equal(t, "42", rec["id"])
	assert.EqualValues(t, 2, rec["attempt"])
}

func TestZerologHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewZerologHandler(zerolog.New(&buf))).
		With("component", "callerapi").
		WithGroup("req")

	logger.Error("failed", "method", "POST")

	rec := decodeLine(t, &buf)
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "callerapi", rec["component"])
	assert.Equal(t, "POST", rec["req.method"])
}
