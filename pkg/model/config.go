package model

import (
	"fmt"
	"math"
)

// Response format types.
const (
	FormatText       = "text"
	FormatJSON       = "json"
	FormatJSONSchema = "json_schema"
)

// ResponseFormat asks the model for a structured reply.
type ResponseFormat struct {
	Type   string         `json:"type" mapstructure:"type"`
	Name   string         `json:"name,omitempty" mapstructure:"name"`
	Schema map[string]any `json:"schema,omitempty" mapstructure:"schema"`
}

// Thinking toggles extended reasoning.
type Thinking struct {
	Enabled      bool  `json:"enabled" mapstructure:"enabled"`
	BudgetTokens int64 `json:"budget_tokens" mapstructure:"budget_tokens"`
}

// Config carries the pass-through knobs of one model. Nil pointers mean "provider default".
type Config struct {
	Model              string          `json:"model" mapstructure:"model"`
	ImageModel         string          `json:"image_model,omitempty" mapstructure:"image_model"`
	EmbeddingModel     string          `json:"embedding_model,omitempty" mapstructure:"embedding_model"`
	EmbeddingDimension int             `json:"embedding_dimension,omitempty" mapstructure:"embedding_dimension"`
	Temperature        *float64        `json:"temperature,omitempty" mapstructure:"temperature"`
	TopP               *float64        `json:"top_p,omitempty" mapstructure:"top_p"`
	Seed               *int64          `json:"seed,omitempty" mapstructure:"seed"`
	MaxTokens          int64           `json:"max_tokens,omitempty" mapstructure:"max_tokens"`
	ResponseFormat     *ResponseFormat `json:"response_format,omitempty" mapstructure:"response_format"`
	Thinking           *Thinking       `json:"thinking,omitempty" mapstructure:"thinking"`
	ReasoningEffort    string          `json:"reasoning_effort,omitempty" mapstructure:"reasoning_effort"`

	// MaxSequentialToolsInvocations bounds tool calls per run; zero means unbounded.
	MaxSequentialToolsInvocations int `json:"max_sequential_tools_invocations,omitempty" mapstructure:"max_sequential_tools_invocations"`
}

// ToolBudget returns the effective tool-call budget.
func (c Config) ToolBudget() int {
	if c.MaxSequentialToolsInvocations <= 0 {
		return math.MaxInt
	}
	return c.MaxSequentialToolsInvocations
}

// Check validates cfg against a provider's capabilities. Every failure is an
// unsupported-combination error; nothing here is retryable.
func (c Config) Check(providerType string, caps Capabilities) error {
	if c.Model == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature %.2f out of range [0, 2]", *c.Temperature)
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return fmt.Errorf("top_p %.2f out of range [0, 1]", *c.TopP)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative")
	}
	if c.Seed != nil && !caps.Seed {
		return fmt.Errorf("%w: provider %s does not support seed", ErrUnsupported, providerType)
	}
	if rf := c.ResponseFormat; rf != nil {
		switch rf.Type {
		case "", FormatText:
		case FormatJSON:
			if !caps.JSONMode {
				return fmt.Errorf("%w: provider %s does not support response format %s", ErrUnsupported, providerType, rf.Type)
			}
		case FormatJSONSchema:
			if !caps.JSONSchema {
				return fmt.Errorf("%w: provider %s does not support response format %s", ErrUnsupported, providerType, rf.Type)
			}
			if len(rf.Schema) == 0 {
				return fmt.Errorf("response format json_schema requires a schema")
			}
		default:
			return fmt.Errorf("unknown response format %q", rf.Type)
		}
	}
	if c.Thinking != nil && c.Thinking.Enabled {
		if !caps.Thinking {
			return fmt.Errorf("%w: provider %s does not support thinking", ErrUnsupported, providerType)
		}
		if c.Thinking.BudgetTokens < 1024 {
			return fmt.Errorf("thinking budget_tokens must be at least 1024")
		}
	}
	if c.ReasoningEffort != "" {
		if !caps.ReasoningEffort {
			return fmt.Errorf("%w: provider %s does not support reasoning effort", ErrUnsupported, providerType)
		}
		switch c.ReasoningEffort {
		case "low", "medium", "high":
		default:
			return fmt.Errorf("unknown reasoning effort %q", c.ReasoningEffort)
		}
	}
	return nil
}
