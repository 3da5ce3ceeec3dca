package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/agentrun/pkg/tools"
)

func setupTestServer(t *testing.T) *server.MCPServer {
	t.Helper()
	srv := server.NewMCPServer("test", "1.0.0", server.WithToolCapabilities(false))

	srv.AddTool(mcp.NewTool("echo",
		mcp.WithDescription("Echo the input"),
		mcp.WithString("text", mcp.Required(), mcp.Description("text to echo")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText("echo: " + text), nil
	})

	srv.AddTool(mcp.NewTool("broken", mcp.WithDescription("Always fails")),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return mcp.NewToolResultError("disk on fire"), nil
		})

	return srv
}

func TestServerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ServerConfig
		wantErr bool
	}{
		{"stdio ok", ServerConfig{Name: "a", Transport: TransportStdio, Command: "srv"}, false},
		{"stdio without command", ServerConfig{Name: "a", Transport: TransportStdio}, true},
		{"docker ok", ServerConfig{Name: "a", Transport: TransportDocker, Image: "img"}, false},
		{"docker without image", ServerConfig{Name: "a", Transport: TransportDocker}, true},
		{"http ok", ServerConfig{Name: "a", Transport: TransportHTTP, URL: "http://x"}, false},
		{"http without url", ServerConfig{Name: "a", Transport: TransportHTTP}, true},
		{"unknown transport", ServerConfig{Name: "a", Transport: "smoke"}, true},
		{"missing name", ServerConfig{Transport: TransportStdio, Command: "srv"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDockerArgs(t *testing.T) {
	args, err := dockerArgs(ServerConfig{
		Image:  "ghcr.io/acme/fs:{{ .tag }}",
		Mounts: []string{"{{ .work_dir }}:/workspace"},
		Env:    map[string]string{"B": "2", "A": "1"},
		Args:   []string{"--root", "/workspace"},
	}, map[string]string{"work_dir": "/tmp/run1", "tag": "v1"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"run", "--rm", "-i",
		"-v", "/tmp/run1:/workspace",
		"-e", "A=1", "-e", "B=2",
		"ghcr.io/acme/fs:v1",
		"--root", "/workspace",
	}, args)

	_, err = dockerArgs(ServerConfig{Image: "{{ .missing }}"}, map[string]string{})
	assert.Error(t, err)
}

func TestProvider_InProcess(t *testing.T) {
	ctx := context.Background()

	t.Run("should list and call tools", func(t *testing.T) {
		p := NewInProcess("local", setupTestServer(t), zerolog.Nop())
		set, err := p.Tools(ctx, tools.RunContext{}, nil)
		require.NoError(t, err)
		require.Len(t, set, 2)

		echo := set["echo"]
		assert.Equal(t, "Echo the input", echo.Spec.Description)
		assert.Equal(t, "object", echo.Spec.Parameters["type"])

		out, err := echo.Executor.Execute(ctx, tools.Request{ID: "c1", Name: "echo", Arguments: `{"text":"hi"}`})
		require.NoError(t, err)
		assert.Equal(t, "echo: hi", out)

		require.NoError(t, p.Close(ctx))
	})

	t.Run("should turn tool errors into executor errors", func(t *testing.T) {
		p := NewInProcess("local", setupTestServer(t), zerolog.Nop())
		defer p.Close(ctx)

		set, err := p.Tools(ctx, tools.RunContext{}, nil)
		require.NoError(t, err)

		_, err = set["broken"].Executor.Execute(ctx, tools.Request{ID: "c2", Name: "broken"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk on fire")

		_, err = set["echo"].Executor.Execute(ctx, tools.Request{ID: "c3", Name: "echo", Arguments: `{bad`})
		assert.Error(t, err)
	})

	t.Run("should filter included tools", func(t *testing.T) {
		p := NewInProcess("local", setupTestServer(t), zerolog.Nop())
		p.include = map[string]bool{"echo": true}
		defer p.Close(ctx)

		set, err := p.Tools(ctx, tools.RunContext{}, nil)
		require.NoError(t, err)
		assert.Len(t, set, 1)
		assert.Contains(t, set, "echo")
	})

	t.Run("should report dial failures", func(t *testing.T) {
		p := newProvider("down", nil, 0, zerolog.Nop())
		p.dial = func(ctx context.Context, vars map[string]string) (*client.Client, error) {
			return nil, errors.New("connection refused")
		}
		_, err := p.Tools(ctx, tools.RunContext{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "down")
		assert.NoError(t, p.Close(ctx))
	})

	t.Run("should be killable after close", func(t *testing.T) {
		p := NewInProcess("local", setupTestServer(t), zerolog.Nop())
		_, err := p.Tools(ctx, tools.RunContext{}, nil)
		require.NoError(t, err)
		p.Kill()
		assert.NoError(t, p.Close(ctx))
	})
}

func TestNew(t *testing.T) {
	_, err := New(ServerConfig{Name: "x", Transport: "carrier-pigeon"}, zerolog.Nop())
	assert.Error(t, err)

	p, err := New(ServerConfig{Name: "fs", Transport: TransportStdio, Command: "fs-server"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "fs", p.Name())
}
