package logging

import (
	"bytes"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytorbit/internal/fault"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "debug", Format: FormatJSON}, &buf)
	require.NoError(t, err)

	log.Debug().Str("video_id", "v1").Int("count", 3).Msg("fetched comments")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "v1", line["video_id"])
	assert.Equal(t, float64(3), line["count"])
	assert.Equal(t, "fetched comments", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "warn", Format: FormatJSON}, &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "shown")
}

func TestNewConsoleDefaults(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{}, &buf)
	require.NoError(t, err)

	log.Debug().Msg("hidden")
	log.Info().Str("channel_id", "UC1").Msg("fetched channel comments")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "fetched channel comments")
	assert.Contains(t, out, "channel_id=UC1")
	assert.NotContains(t, out, "\x1b[", "no color when not a terminal")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, fault.ErrInvalidInput)

	_, err = New(Config{Format: "xml"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, fault.ErrInvalidInput)
}
