package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader(t *testing.T) {
	t.Run("should return defaults when the file is missing", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("HOME", dir)

		cfg, err := Load(filepath.Join(dir, "missing.json"))
		require.NoError(t, err)
		assert.Equal(t, "openai", cfg.Model.Provider)
		assert.Equal(t, filepath.Join(dir, ".agentrun"), cfg.DataDir)
		assert.Equal(t, filepath.Join(dir, ".agentrun", "memory.db"), cfg.Memory.SQLite.Path)
	})

	t.Run("should read the file over the defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "agentrun.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"data_dir": "`+dir+`",
			"model": {
				"provider": "anthropic",
				"model": "claude-sonnet-4",
				"temperature": 0.2,
				"max_sequential_tools_invocations": 3,
				"response_format": {"type": "json_schema", "schema": {"type": "object"}}
			},
			"memory": {"backend": "redis", "ttl": "30m", "drop_policy": "AFTER_TASKRUN", "redis": {"addr": "cache:6379"}},
			"tools": {
				"mcp": [{"name": "fs", "transport": "stdio", "command": "mcp-fs", "timeout": "10s"}],
				"sandbox": {"enabled": true, "runtime": "docker"},
				"tasks": [{"name": "lint", "command": ["make", "lint"]}]
			}
		}`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "anthropic", cfg.Model.Provider)
		assert.Equal(t, "claude-sonnet-4", cfg.Model.Model)
		require.NotNil(t, cfg.Model.Temperature)
		assert.InDelta(t, 0.2, *cfg.Model.Temperature, 1e-9)
		assert.Equal(t, 3, cfg.Model.MaxSequentialToolsInvocations)
		require.NotNil(t, cfg.Model.ResponseFormat)
		assert.Equal(t, "json_schema", cfg.Model.ResponseFormat.Type)

		assert.Equal(t, "redis", cfg.Memory.Backend)
		assert.Equal(t, 30*time.Minute, cfg.Memory.TTL)
		assert.Equal(t, "cache:6379", cfg.Memory.Redis.Addr)
		assert.Equal(t, 10, cfg.Memory.Window)

		require.Len(t, cfg.Tools.MCP, 1)
		assert.Equal(t, 10*time.Second, cfg.Tools.MCP[0].Timeout)
		assert.True(t, cfg.Tools.Sandbox.Enabled)
		assert.Equal(t, "docker", string(cfg.Tools.Sandbox.Runtime))
		assert.Equal(t, 512, cfg.Tools.Sandbox.Limits.MaxMemoryMB)
		require.Len(t, cfg.Tools.Tasks, 1)
		assert.Equal(t, []string{"make", "lint"}, cfg.Tools.Tasks[0].Command)

		assert.Equal(t, filepath.Join(dir, "outputs"), cfg.Outputs.Dir)
	})

	t.Run("should keep the case of embedded schemas", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentrun.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"model": {"response_format": {"type": "json_schema", "schema": {"type": "object", "additionalProperties": false}}},
			"tools": {"tasks": [{"name": "t", "parameters": {"type": "object", "minProperties": 1}}]}
		}`), 0o644))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, false, cfg.Model.ResponseFormat.Schema["additionalProperties"])
		assert.Equal(t, 1.0, cfg.Tools.Tasks[0].Parameters["minProperties"])
	})

	t.Run("should apply environment overrides for secrets", func(t *testing.T) {
		dir := t.TempDir()
		t.Setenv("AGENTRUN_MODEL_API_KEY", "sk-from-env")
		t.Setenv("AGENTRUN_MEMORY_POSTGRES_DSN", "postgres://env/db")

		cfg, err := Load(filepath.Join(dir, "missing.json"))
		require.NoError(t, err)
		assert.Equal(t, "sk-from-env", cfg.Model.APIKey)
		assert.Equal(t, "postgres://env/db", cfg.Memory.Postgres.DSN)
	})

	t.Run("should fail on malformed files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "agentrun.json")
		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))

		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("should save and load back", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "nested", "agentrun.json")
		loader := NewLoader(path)

		cfg := DefaultConfig()
		cfg.DataDir = dir
		cfg.Memory.Backend = BackendSQLite
		cfg.Memory.Window = 4
		require.NoError(t, loader.Save(cfg))

		loaded, err := loader.Load()
		require.NoError(t, err)
		assert.Equal(t, BackendSQLite, loaded.Memory.Backend)
		assert.Equal(t, 4, loaded.Memory.Window)
		assert.Equal(t, 24*time.Hour, loaded.Memory.TTL)
		assert.Equal(t, path, loader.GetConfigPath())
	})
}
