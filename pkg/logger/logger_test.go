package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter(t *testing.T) {
	t.Run("json with component", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWithWriter(&buf, "debug", "json")
		require.NoError(t, err)

		WithComponent(l, ComponentImport).Debug("parsed", slog.Int("rows", 3))

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "parsed", rec["msg"])
		assert.Equal(t, "import", rec["component"])
		assert.EqualValues(t, 3, rec["rows"])
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := NewWithWriter(&buf, "warn", "text")
		require.NoError(t, err)

		l.Info("hidden")
		l.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("rejects unknown settings", func(t *testing.T) {
		_, err := NewWithWriter(&bytes.Buffer{}, "loud", "text")
		assert.Error(t, err)
		_, err = NewWithWriter(&bytes.Buffer{}, "info", "xml")
		assert.Error(t, err)
	})
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
