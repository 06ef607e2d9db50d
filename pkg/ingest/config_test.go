package ingest

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"", LogLevelInfo},
		{"info", LogLevelInfo},
		{"0", LogLevelInfo},
		{"debug", LogLevelDebug1},
		{"DEBUG1", LogLevelDebug1},
		{"2", LogLevelDebug2},
		{" debug3 ", LogLevelDebug3},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLogLevel("trace")
	assert.Error(t, err)

	assert.Equal(t, "Debug2", LogLevelDebug2.String())
	assert.Equal(t, "Unknown", LogLevel(9).String())
}

func TestLeveledLoggerFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger := leveledLogger{Logger: base, level: LogLevelDebug1}
	logger.debug(LogLevelDebug1, "shown")
	logger.debug(LogLevelDebug2, "hidden")

	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}
