package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	t.Cleanup(func() { _ = Setup("info", "console") })

	require.NoError(t, Setup("debug", "json"))
	assert.Equal(t, zerolog.DebugLevel, globalLogger.GetLevel())

	require.NoError(t, Setup("not-a-level", "json"))
	assert.Equal(t, zerolog.InfoLevel, globalLogger.GetLevel())

	assert.Error(t, Setup("info", "xml"))
}

func TestJSONOutput(t *testing.T) {
	t.Cleanup(func() { _ = Setup("info", "console") })
	require.NoError(t, Setup("info", "json"))

	var buf bytes.Buffer
	SetOutput(&buf)

	Info().Str("bucket", "logs").Int64("objects", 12).Msg("bucket collected")
	Debug().Msg("hidden")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "logs", entry["bucket"])
	assert.Equal(t, float64(12), entry["objects"])
	assert.Equal(t, "bucket collected", entry["message"])
	assert.NotContains(t, buf.String(), "hidden")
}
