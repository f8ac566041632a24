package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubAddsSubsystemField(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug").Sub("dialog")

	log.Info().Str("session", "abc").Msg("turn processed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dialog", entry["subsystem"])
	assert.Equal(t, "abc", entry["session"])
	assert.Equal(t, "turn processed", entry["message"])
}

func TestLevelFiltersLowerEvents(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestSilentDisablesOutput(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "silent")
	log.Error().Msg("nope")
	assert.Zero(t, buf.Len())
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	assert.Equal(t, parseLevel("info"), parseLevel("bogus"))
	assert.Equal(t, parseLevel("debug"), parseLevel(" DEBUG "))
}
