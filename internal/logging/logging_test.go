package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"loud":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", FormatJSON, &buf)

	log.Debugw("hidden")
	log.Infow("Processing dependent", "dependent", "decks")
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Processing dependent", entry["msg"])
	assert.Equal(t, "decks", entry["dependent"])
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("debug", FormatConsole, &buf)

	log.Debugw("scan", "collection", "users")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.Contains(t, out, " | DEBUG | scan")
	assert.Contains(t, out, `"collection": "users"`)
}
