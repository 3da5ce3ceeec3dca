package model

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestConfigCheck(t *testing.T) {
	full := Capabilities{Seed: true, JSONMode: true, JSONSchema: true, Thinking: true, ReasoningEffort: true}

	tests := []struct {
		name        string
		cfg         Config
		caps        Capabilities
		unsupported bool
		wantErr     bool
	}{
		{name: "minimal", cfg: Config{Model: "m"}},
		{name: "missing model", cfg: Config{}, wantErr: true},
		{name: "seed unsupported", cfg: Config{Model: "m", Seed: ptr(int64(7))}, unsupported: true, wantErr: true},
		{name: "seed supported", cfg: Config{Model: "m", Seed: ptr(int64(7))}, caps: full},
		{name: "json unsupported", cfg: Config{Model: "m", ResponseFormat: &ResponseFormat{Type: FormatJSON}}, unsupported: true, wantErr: true},
		{name: "text format always allowed", cfg: Config{Model: "m", ResponseFormat: &ResponseFormat{Type: FormatText}}},
		{name: "schema without schema", cfg: Config{Model: "m", ResponseFormat: &ResponseFormat{Type: FormatJSONSchema}}, caps: full, wantErr: true},
		{name: "unknown format", cfg: Config{Model: "m", ResponseFormat: &ResponseFormat{Type: "xml"}}, caps: full, wantErr: true},
		{name: "thinking unsupported", cfg: Config{Model: "m", Thinking: &Thinking{Enabled: true, BudgetTokens: 2048}}, unsupported: true, wantErr: true},
		{name: "thinking budget too small", cfg: Config{Model: "m", Thinking: &Thinking{Enabled: true, BudgetTokens: 10}}, caps: full, wantErr: true},
		{name: "disabled thinking ignored", cfg: Config{Model: "m", Thinking: &Thinking{}}},
		{name: "temperature out of range", cfg: Config{Model: "m", Temperature: ptr(3.0)}, wantErr: true},
		{name: "top_p out of range", cfg: Config{Model: "m", TopP: ptr(1.5)}, wantErr: true},
		{name: "bad effort", cfg: Config{Model: "m", ReasoningEffort: "max"}, caps: full, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Check("test", tt.caps)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.unsupported, errors.Is(err, ErrUnsupported))
		})
	}
}

func TestToolBudget(t *testing.T) {
	assert.Equal(t, math.MaxInt, Config{}.ToolBudget())
	assert.Equal(t, 1, Config{MaxSequentialToolsInvocations: 1}.ToolBudget())
}

func TestRegistry(t *testing.T) {
	t.Run("should list registered types", func(t *testing.T) {
		assert.Equal(t, []string{"anthropic", "ollama", "openai"}, Types())
	})

	t.Run("should reject unknown type", func(t *testing.T) {
		_, err := New("gemini", Credentials{APIKey: "k"})
		require.Error(t, err)
	})

	t.Run("should build ollama without credentials", func(t *testing.T) {
		p, err := New("ollama", Credentials{})
		require.NoError(t, err)
		assert.Equal(t, "ollama", p.Type())
		assert.False(t, p.Capabilities().Thinking)

		_, err = p.ImageModel(Config{})
		assert.ErrorIs(t, err, ErrUnsupported)
	})

	t.Run("should require api key for hosted providers", func(t *testing.T) {
		_, err := New("openai", Credentials{})
		require.Error(t, err)
		_, err = New("anthropic", Credentials{})
		require.Error(t, err)
	})

	t.Run("should reject seed on anthropic", func(t *testing.T) {
		p, err := New("anthropic", Credentials{APIKey: "k"})
		require.NoError(t, err)
		_, err = p.ChatModel(Config{Model: "claude", Seed: ptr(int64(1))})
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}
