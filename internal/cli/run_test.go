package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/pkg/agent"
	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/model"
	"github.com/harun/agentrun/pkg/model/modeltest"
	"github.com/harun/agentrun/pkg/tools"
)

// setupTestRun points the provider factory at a scripted model and writes a config file whose
// data directory lives under a temp dir.
func setupTestRun(t *testing.T, extra string, steps ...modeltest.Step) (string, *modeltest.ScriptedModel) {
	t.Helper()
	scripted := modeltest.NewScriptedModel(steps...)
	prev := providerFactory
	providerFactory = func(typ string, creds model.Credentials) (model.Provider, error) {
		return &modeltest.Provider{Chat: scripted}, nil
	}
	t.Cleanup(func() { providerFactory = prev })

	dir := t.TempDir()
	dataDir, err := json.Marshal(dir)
	require.NoError(t, err)

	body := `{
		"data_dir": ` + string(dataDir) + `,
		"model": {"provider": "ollama", "model": "llama3"},
		"logging": {"console": false, "level": "debug"}` + extra + `
	}`
	path := filepath.Join(dir, "agentrun.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, scripted
}

func decodeResult(t *testing.T, out string) agent.Result {
	t.Helper()
	var res agent.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	return res
}

func TestRunCommand(t *testing.T) {
	t.Run("should require a prompt", func(t *testing.T) {
		path, _ := setupTestRun(t, "")
		_, err := executeCmd(t, "run", "--config", path)
		assert.ErrorContains(t, err, "prompt")
	})

	t.Run("should print the result as JSON", func(t *testing.T) {
		path, scripted := setupTestRun(t, "", modeltest.Reply("Hello!", chat.TokenUsage{InputTokens: 3, OutputTokens: 2, TotalTokens: 5}))

		out, err := executeCmd(t, "run", "--config", path, "--prompt", "Hi", "--system", "Be nice.")
		require.NoError(t, err)

		res := decodeResult(t, out)
		assert.Equal(t, "Hello!", res.Text)
		assert.Equal(t, int64(5), res.Usage.TotalTokens)
		assert.NotEmpty(t, res.RunID)

		reqs := scripted.Requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, []chat.Message{chat.System("Be nice."), chat.User("Hi")}, reqs[0].Messages)
	})

	t.Run("should remember across runs with the sqlite backend", func(t *testing.T) {
		path, scripted := setupTestRun(t, `, "memory": {"backend": "sqlite", "window": 5}`,
			modeltest.Reply("Nice to meet you, John.", chat.TokenUsage{}),
			modeltest.Reply("Your name is John.", chat.TokenUsage{}),
		)

		_, err := executeCmd(t, "run", "--config", path, "-p", "My name is John.", "-m", "user-1")
		require.NoError(t, err)
		out, err := executeCmd(t, "run", "--config", path, "-p", "What is my name?", "-m", "user-1")
		require.NoError(t, err)
		assert.Equal(t, "Your name is John.", decodeResult(t, out).Text)

		reqs := scripted.Requests()
		require.Len(t, reqs, 2)
		assert.Equal(t, []chat.Message{
			chat.User("My name is John."),
			chat.AI("Nice to meet you, John."),
			chat.User("What is my name?"),
		}, reqs[1].Messages)
	})

	t.Run("should run configured tasks as tools", func(t *testing.T) {
		if runtime.GOOS == "windows" {
			t.Skip("requires a POSIX shell")
		}
		path, scripted := setupTestRun(t, `, "tools": {"tasks": [{
				"name": "greet",
				"description": "Greet someone",
				"parameters": {"type": "object", "properties": {"name": {"type": "string"}}, "required": ["name"]},
				"command": ["sh", "-c", "echo hello {{ .name }}"]
			}]}`,
			modeltest.CallTools(tools.Request{ID: "c1", Name: "greet", Arguments: `{"name":"ada"}`}),
			modeltest.Reply("done", chat.TokenUsage{}),
		)

		out, err := executeCmd(t, "run", "--config", path, "-p", "greet ada", "--work-dir", t.TempDir())
		require.NoError(t, err)

		res := decodeResult(t, out)
		require.Len(t, res.ToolExecutions, 1)
		assert.Equal(t, "greet", res.ToolExecutions[0].Name)
		assert.Contains(t, res.ToolExecutions[0].Result, "hello ada")
		require.Len(t, scripted.Requests(), 2)
	})

	t.Run("should gather declared outputs", func(t *testing.T) {
		path, _ := setupTestRun(t, "", modeltest.Reply("written", chat.TokenUsage{}))
		workDir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(workDir, "report.md"), []byte("# report"), 0o644))

		out, err := executeCmd(t, "run", "--config", path, "-p", "write", "--work-dir", workDir, "--output", "report.md")
		require.NoError(t, err)

		res := decodeResult(t, out)
		location, ok := res.OutputFiles["report.md"]
		require.True(t, ok)
		data, err := os.ReadFile(location)
		require.NoError(t, err)
		assert.Equal(t, "# report", string(data))
	})

	t.Run("should fail when the model fails and still write metrics", func(t *testing.T) {
		path, _ := setupTestRun(t, "", modeltest.Fail(errors.New("model down")))
		metricsFile := filepath.Join(t.TempDir(), "agentrun.prom")

		_, err := executeCmd(t, "run", "--config", path, "-p", "hi", "--metrics-out", metricsFile)
		assert.ErrorContains(t, err, "run failed")

		data, err := os.ReadFile(metricsFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "agentrun_runs_total")
	})

	t.Run("should reject an invalid configuration", func(t *testing.T) {
		path, _ := setupTestRun(t, `, "memory": {"backend": "mongo"}`)
		_, err := executeCmd(t, "run", "--config", path, "-p", "hi")
		assert.ErrorContains(t, err, "invalid memory backend")
	})
}
