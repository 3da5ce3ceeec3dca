package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("should write JSON lines at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Level: "warn", Console: true}, &buf)
		require.NoError(t, err)

		l.Info().Msg("hidden")
		l.Warn().Str("component", "agent").Msg("visible")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 1)
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
		assert.Equal(t, "visible", entry["message"])
		assert.Equal(t, "agent", entry["component"])
		assert.Contains(t, entry, "time")
	})

	t.Run("should fall back to info for unknown levels", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Level: "chatty", Console: true}, &buf)
		require.NoError(t, err)

		l.Debug().Msg("hidden")
		l.Info().Msg("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("should redact secrets", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := newWithConsole(Config{Level: "info", Console: true, Redaction: true}, &buf)
		require.NoError(t, err)

		l.Info().Str("dsn", "postgres://agent:hunter2@db:5432/app").Msg("Connecting")
		assert.NotContains(t, buf.String(), "hunter2")
		assert.Contains(t, buf.String(), "db:5432")
	})

	t.Run("should write to a rotating file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "agentrun.log")
		l, err := newWithConsole(Config{Level: "info", File: path, MaxSize: 1}, &bytes.Buffer{})
		require.NoError(t, err)

		l.Info().Msg("to file")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
	})

	t.Run("should write to a plain file without rotation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentrun.log")
		l, err := newWithConsole(Config{Level: "info", File: path}, &bytes.Buffer{})
		require.NoError(t, err)

		l.Info().Msg("plain")
		require.NoError(t, l.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "plain")
	})

	t.Run("should close without a file", func(t *testing.T) {
		l, err := newWithConsole(Config{}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.NoError(t, l.Close())
	})
}
