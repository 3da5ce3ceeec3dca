package tasktool

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/pkg/tools"
)

func setupTestProvider(t *testing.T, runner Runner, defs ...Definition) *Provider {
	t.Helper()
	p, err := New(runner, defs, zerolog.Nop())
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	noop := RunnerFunc(func(ctx context.Context, req Request) (*Output, error) { return nil, nil })

	t.Run("should require a runner", func(t *testing.T) {
		_, err := New(nil, nil, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("should reject unnamed and duplicate tasks", func(t *testing.T) {
		_, err := New(noop, []Definition{{}}, zerolog.Nop())
		assert.Error(t, err)

		_, err = New(noop, []Definition{{Name: "a"}, {Name: "a"}}, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("should merge rendered defaults under model arguments", func(t *testing.T) {
		var got Request
		runner := RunnerFunc(func(ctx context.Context, req Request) (*Output, error) {
			got = req
			return &Output{State: StateSuccess, Outputs: map[string]any{"rows": 3}}, nil
		})
		p := setupTestProvider(t, runner, Definition{
			Name:        "query",
			Type:        "io.sql.Query",
			Description: "Query the warehouse from {{ .work_dir }}",
			Parameters: tools.ObjectSchema(map[string]any{
				"sql": tools.Property("string", "Statement"),
			}, "sql"),
			Defaults: map[string]string{"database": "analytics", "dir": "{{ .work_dir }}"},
		})

		set, err := p.Tools(ctx, tools.RunContext{RunID: "run-1", WorkDir: "/w"}, map[string]string{"work_dir": "/w"})
		require.NoError(t, err)
		tool := set["query"]
		assert.Equal(t, "Query the warehouse from /w", tool.Spec.Description)

		out, err := tool.Executor.Execute(ctx, tools.Request{ID: "c1", Name: "query", Arguments: `{"sql":"select 1","database":"prod"}`})
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &decoded))
		assert.Equal(t, 3.0, decoded["rows"])

		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, "/w", got.WorkDir)
		assert.Equal(t, "io.sql.Query", got.Task.Type)
		assert.Equal(t, map[string]any{"sql": "select 1", "database": "prod", "dir": "/w"}, got.Arguments)
	})

	t.Run("should reject arguments violating the schema", func(t *testing.T) {
		runner := RunnerFunc(func(ctx context.Context, req Request) (*Output, error) {
			t.Fatal("runner must not be called")
			return nil, nil
		})
		p := setupTestProvider(t, runner, Definition{
			Name:       "query",
			Parameters: tools.ObjectSchema(map[string]any{"sql": tools.Property("string", "Statement")}, "sql"),
		})
		set, err := p.Tools(ctx, tools.RunContext{}, nil)
		require.NoError(t, err)

		_, err = set["query"].Executor.Execute(ctx, tools.Request{Arguments: `{}`})
		assert.ErrorIs(t, err, tools.ErrInvalidArguments)
	})

	t.Run("should fail when the task fails", func(t *testing.T) {
		runner := RunnerFunc(func(ctx context.Context, req Request) (*Output, error) {
			return &Output{State: StateFailed, Error: "table missing"}, nil
		})
		p := setupTestProvider(t, runner, Definition{Name: "query"})

		_, err := p.Execute(ctx, Request{Task: Definition{Name: "query"}})
		assert.ErrorIs(t, err, ErrTaskFailed)
		assert.Contains(t, err.Error(), "table missing")
	})

	t.Run("should wrap runner errors", func(t *testing.T) {
		runner := RunnerFunc(func(ctx context.Context, req Request) (*Output, error) {
			return nil, errors.New("engine unreachable")
		})
		p := setupTestProvider(t, runner, Definition{Name: "query"})

		_, err := p.Execute(ctx, Request{Task: Definition{Name: "query"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine unreachable")
	})

	t.Run("should reject tasks after close", func(t *testing.T) {
		p := setupTestProvider(t, RunnerFunc(func(ctx context.Context, req Request) (*Output, error) { return nil, nil }))
		require.NoError(t, p.Close(ctx))

		_, err := p.Execute(ctx, Request{})
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("should cancel running tasks on kill", func(t *testing.T) {
		started := make(chan struct{})
		runner := RunnerFunc(func(ctx context.Context, req Request) (*Output, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})
		p := setupTestProvider(t, runner)

		errCh := make(chan error, 1)
		go func() {
			_, err := p.Execute(ctx, Request{})
			errCh <- err
		}()
		<-started
		p.Kill()

		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrKilled)
		case <-time.After(5 * time.Second):
			t.Fatal("task was not cancelled")
		}
	})
}

func TestCommandRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	ctx := context.Background()

	t.Run("should render the command with arguments", func(t *testing.T) {
		out, err := CommandRunner{}.Run(ctx, Request{
			Task:      Definition{Name: "greet", Command: []string{"sh", "-c", "echo hello {{ .name }}"}},
			Arguments: map[string]any{"name": "world"},
			WorkDir:   t.TempDir(),
		})
		require.NoError(t, err)
		assert.Equal(t, StateSuccess, out.State)
		assert.Equal(t, "hello world\n", out.Outputs["stdout"])
	})

	t.Run("should report a non-zero exit as a failed task", func(t *testing.T) {
		out, err := CommandRunner{}.Run(ctx, Request{
			Task: Definition{Name: "fail", Command: []string{"sh", "-c", "echo oops >&2; exit 3"}},
		})
		require.NoError(t, err)
		assert.Equal(t, StateFailed, out.State)
		assert.Equal(t, "oops", out.Error)
		assert.Equal(t, 3, out.Outputs["exit_code"])
	})

	t.Run("should truncate output", func(t *testing.T) {
		out, err := CommandRunner{MaxOutput: 4}.Run(ctx, Request{
			Task: Definition{Name: "long", Command: []string{"sh", "-c", "echo 123456789"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "1234", out.Outputs["stdout"])
	})

	t.Run("should require a command", func(t *testing.T) {
		_, err := CommandRunner{}.Run(ctx, Request{Task: Definition{Name: "empty"}})
		assert.Error(t, err)
	})
}
