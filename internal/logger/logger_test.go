package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn", "prod")

	log.Info().Msg("hidden")
	log.Warn().Int64("chat_id", 42).Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, float64(42), entry["chat_id"])
	assert.Equal(t, "billbot", entry["app"])
}

func TestNewWithWriter_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "loud", "prod")

	log.Debug().Msg("hidden")
	assert.Zero(t, buf.Len())
	log.Info().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNewWithWriter_DevConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug", "dev")
	log.Debug().Msg("pretty")
	assert.Contains(t, buf.String(), "pretty")
	assert.False(t, json.Valid(buf.Bytes()))
}
