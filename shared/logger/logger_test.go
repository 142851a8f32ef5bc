package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, line []byte) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(line, &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		checkFunc func(t *testing.T, logger *Logger, output *bytes.Buffer)
	}{
		{
			name:   "json format with debug level",
			config: Config{Level: "debug", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Debug("bucket merged", slog.String("key", "jobs:2024-06-01T14:00:00Z"))

				entry := decodeLine(t, output.Bytes())
				assert.Equal(t, "DEBUG", entry["level"])
				assert.Equal(t, "bucket merged", entry["msg"])
				assert.Equal(t, "jobs:2024-06-01T14:00:00Z", entry["key"])
				assert.Contains(t, entry, "time")
			},
		},
		{
			name:   "level filtering",
			config: Config{Level: "warn", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("dropped")
				logger.Warn("kept", slog.Int("attempt", 2))

				lines := strings.Split(strings.TrimSpace(output.String()), "\n")
				require.Len(t, lines, 1)
				entry := decodeLine(t, []byte(lines[0]))
				assert.Equal(t, "WARN", entry["level"])
				assert.Equal(t, float64(2), entry["attempt"])
			},
		},
		{
			name:   "level names are case-insensitive",
			config: Config{Level: "ERROR", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Warn("dropped")
				assert.Empty(t, output.String())
			},
		},
		{
			name:   "console format",
			config: Config{Level: "info", Format: "console"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("scheduler started")

				// tint abbreviates levels
				assert.Contains(t, output.String(), "INF")
				assert.Contains(t, output.String(), "scheduler started")
			},
		},
		{
			name:   "source location",
			config: Config{Level: "info", Format: "json", EnableSource: true},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("with source")

				entry := decodeLine(t, output.Bytes())
				source, ok := entry["source"].(map[string]any)
				require.True(t, ok)
				assert.Contains(t, source, "file")
				assert.Contains(t, source, "line")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			cfg := tt.config
			cfg.writer = output

			logger, err := New(&cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)

			tt.checkFunc(t, logger, output)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "jobfeed.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("first")
	require.NoError(t, logger.Close())

	// reopening appends
	logger, err = New(&Config{Level: "info", Format: "console", Output: path})
	require.NoError(t, err)
	logger.Info("second")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "first", decodeLine(t, []byte(lines[0]))["msg"])
	assert.Contains(t, lines[1], "second")
	assert.NotContains(t, lines[1], "\x1b[", "file output is not colourised")
}

func TestNew_UnwritableFile(t *testing.T) {
	dir := t.TempDir()

	_, err := New(&Config{Output: dir})
	assert.ErrorContains(t, err, "failed to open log file")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NoError(t, logger.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "info", expected: slog.LevelInfo},
		{level: "warn", expected: slog.LevelWarn},
		{level: "warning", expected: slog.LevelWarn},
		{level: "Error", expected: slog.LevelError},
		{level: "invalid", expected: slog.LevelInfo},
		{level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_Derived(t *testing.T) {
	output := &bytes.Buffer{}
	logger, err := New(&Config{Level: "info", Format: "json", writer: output})
	require.NoError(t, err)

	logger.Component("ingest").Info("cycle completed", slog.Int("received", 3))
	entry := decodeLine(t, output.Bytes())
	assert.Equal(t, "ingest", entry["component"])
	assert.Equal(t, float64(3), entry["received"])

	output.Reset()
	logger.WithAttrs(slog.String("request_id", "12345")).Info("served")
	assert.Equal(t, "12345", decodeLine(t, output.Bytes())["request_id"])

	output.Reset()
	logger.WithGroup("queue").Info("received", slog.Int("messages", 10))
	group, ok := decodeLine(t, output.Bytes())["queue"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(10), group["messages"])
}
