package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Level: "warn", Output: &buf})
	require.NoError(t, err)

	ranker := Component(logger, "ranker")
	ranker.Info().Msg("dropped")
	assert.Zero(t, buf.Len())

	ranker.Warn().Float64("sum", 0.8).Msg("weights do not sum to one")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "ranker", entry["component"])
	assert.Equal(t, "brainmem", entry["app"])
	assert.Equal(t, 0.8, entry["sum"])
}

func TestNewRejectsBadFormat(t *testing.T) {
	_, err := New(&Config{Format: "xml"})
	assert.Error(t, err)

	_, err = New(&Config{Format: FormatConsole, Output: &bytes.Buffer{}})
	assert.NoError(t, err)
}
