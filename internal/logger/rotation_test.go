package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriter(t *testing.T) {
	t.Run("should reject a non-positive size", func(t *testing.T) {
		_, err := NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), RotationOptions{})
		assert.Error(t, err)
	})

	t.Run("should rotate once the size limit is exceeded", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "agentrun.log")
		w, err := NewRotatingWriter(path, RotationOptions{MaxSizeMB: 1})
		require.NoError(t, err)
		defer w.Close()

		chunk := []byte(strings.Repeat("x", 600<<10) + "\n")
		_, err = w.Write(chunk)
		require.NoError(t, err)
		_, err = w.Write(chunk)
		require.NoError(t, err)

		rotated, err := filepath.Glob(path + ".*")
		require.NoError(t, err)
		assert.Len(t, rotated, 1)

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, int64(len(chunk)), info.Size())
	})

	t.Run("should compress rotated files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "agentrun.log")
		w, err := NewRotatingWriter(path, RotationOptions{MaxSizeMB: 1, Compress: true})
		require.NoError(t, err)
		defer w.Close()

		chunk := []byte(strings.Repeat("y", 700<<10))
		_, err = w.Write(chunk)
		require.NoError(t, err)
		_, err = w.Write(chunk)
		require.NoError(t, err)

		gz, err := filepath.Glob(path + ".*.gz")
		require.NoError(t, err)
		assert.Len(t, gz, 1)
	})

	t.Run("should prune expired rotated files", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "agentrun.log")
		old := path + ".20200101-000000.000"
		recent := path + ".20990101-000000.000"
		require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
		require.NoError(t, os.WriteFile(recent, []byte("recent"), 0o644))
		past := time.Now().Add(-30 * 24 * time.Hour)
		require.NoError(t, os.Chtimes(old, past, past))

		w, err := NewRotatingWriter(path, RotationOptions{MaxSizeMB: 1, MaxAge: 7})
		require.NoError(t, err)
		defer w.Close()

		_, err = os.Stat(old)
		assert.True(t, os.IsNotExist(err))
		_, err = os.Stat(recent)
		assert.NoError(t, err)
	})

	t.Run("should fail writes after close", func(t *testing.T) {
		w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "a.log"), RotationOptions{MaxSizeMB: 1})
		require.NoError(t, err)
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("late"))
		assert.ErrorIs(t, err, os.ErrClosed)
	})
}
