package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
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
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false, zerolog.InfoLevel)

	logger.Info().Msg("service started")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "service started", entry[zerolog.MessageFieldName])
	assert.Equal(t, "info", entry[zerolog.LevelFieldName])
	assert.NotContains(t, entry, zerolog.CallerFieldName)
}

func TestNew_JSONDebugAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, false, zerolog.DebugLevel)

	logger.Debug().Msg("tick")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry, zerolog.CallerFieldName)
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, true, zerolog.InfoLevel)

	logger.Info().Msg("service started")

	assert.Contains(t, buf.String(), "service started")
}

func TestShortCaller(t *testing.T) {
	file := filepath.Join("internal", "app", "service", "service.go")
	assert.Equal(t, filepath.Join("service", "service.go")+":42", shortCaller(0, file, 42))
	assert.Equal(t, "main.go:7", shortCaller(0, "main.go", 7))
}

func TestOpenOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trackd.log")

	w, console, err := openOutput(path)
	require.NoError(t, err)
	assert.False(t, console)

	f, ok := w.(*os.File)
	require.True(t, ok)
	require.NoError(t, f.Close())

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
