package tools

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingProvider struct{}

func (failingProvider) Name() string { return "broken" }
func (failingProvider) Tools(ctx context.Context, rc RunContext, vars map[string]string) (map[string]Tool, error) {
	return nil, errors.New("boom")
}
func (failingProvider) Close(ctx context.Context) error { return nil }

func echoTool(t *testing.T, name, desc string) Tool {
	t.Helper()
	tool, err := Func(Specification{
		Name:        name,
		Description: desc,
		Parameters:  ObjectSchema(map[string]any{"text": Property("string", "text to echo")}, "text"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return args["text"], nil
	})
	require.NoError(t, err)
	return tool
}

func TestAssemble(t *testing.T) {
	ctx := context.Background()

	t.Run("should merge tools from every provider", func(t *testing.T) {
		a := NewStatic("a", echoTool(t, "echo", "first"))
		b := NewStatic("b", echoTool(t, "shout", "second"))

		set, err := Assemble(ctx, zerolog.Nop(), RunContext{RunID: "r1"}, []Provider{a, b}, nil)
		require.NoError(t, err)
		assert.Len(t, set, 2)
		assert.Contains(t, set, "echo")
		assert.Contains(t, set, "shout")
	})

	t.Run("should let the last provider win on duplicate names", func(t *testing.T) {
		a := NewStatic("a", echoTool(t, "echo", "first"))
		b := NewStatic("b", echoTool(t, "echo", "second"))
		var buf bytes.Buffer

		set, err := Assemble(ctx, zerolog.New(&buf), RunContext{}, []Provider{a, b}, nil)
		require.NoError(t, err)
		require.Len(t, set, 1)
		assert.Equal(t, "second", set["echo"].Spec.Description)
		assert.Contains(t, buf.String(), "Duplicate tool name")
		assert.Contains(t, buf.String(), `"provider":"b"`)
	})

	t.Run("should render extra variables into descriptions", func(t *testing.T) {
		p := NewStatic("a", echoTool(t, "echo", "Echo inside {{ .work_dir }}"))

		set, err := Assemble(ctx, zerolog.Nop(), RunContext{}, []Provider{p}, map[string]string{"work_dir": "/tmp/run"})
		require.NoError(t, err)
		assert.Equal(t, "Echo inside /tmp/run", set["echo"].Spec.Description)
	})

	t.Run("should fail when a provider fails", func(t *testing.T) {
		_, err := Assemble(ctx, zerolog.Nop(), RunContext{}, []Provider{failingProvider{}}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "broken")
	})
}

func TestFunc(t *testing.T) {
	ctx := context.Background()
	tool := echoTool(t, "echo", "echo")

	t.Run("should execute with valid arguments", func(t *testing.T) {
		out, err := tool.Executor.Execute(ctx, Request{ID: "c1", Name: "echo", Arguments: `{"text":"hi"}`})
		require.NoError(t, err)
		assert.Equal(t, "hi", out)
	})

	t.Run("should reject malformed JSON", func(t *testing.T) {
		_, err := tool.Executor.Execute(ctx, Request{ID: "c1", Name: "echo", Arguments: `{"text":`})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})

	t.Run("should reject arguments that violate the schema", func(t *testing.T) {
		_, err := tool.Executor.Execute(ctx, Request{ID: "c1", Name: "echo", Arguments: `{"text":42}`})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "validation errors")
		assert.ErrorIs(t, err, ErrInvalidArguments)
	})
}

func TestRender(t *testing.T) {
	t.Run("should leave plain text alone", func(t *testing.T) {
		out, err := Render("no markers", nil)
		require.NoError(t, err)
		assert.Equal(t, "no markers", out)
	})

	t.Run("should fail on missing keys", func(t *testing.T) {
		_, err := Render("{{ .missing }}", map[string]string{})
		require.Error(t, err)
	})

	t.Run("should apply default helper", func(t *testing.T) {
		out, err := Render(`{{ default "x" .v }}`, map[string]string{"v": ""})
		require.NoError(t, err)
		assert.Equal(t, "x", out)
	})
}

func TestStringify(t *testing.T) {
	out, err := Stringify(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, out)

	out, err = Stringify(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
