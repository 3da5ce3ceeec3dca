// Package model is the capability boundary between the orchestrator and LLM vendors. A
// Provider hands out chat, image and embedding models; providers are selected by a type
// discriminator through a static registry.
package model

import (
	"context"
	"errors"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/tools"
)

// ErrUnsupported is returned when a provider lacks a requested capability.
var ErrUnsupported = errors.New("unsupported by provider")

// ToolResult is the outcome of one tool call fed back to the model.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

// ToolExchange is one round of model-issued tool calls and their results.
type ToolExchange struct {
	Text    string // text the model emitted alongside the calls
	Calls   []tools.Request
	Results []ToolResult
}

// Request is one completion request. Messages must satisfy chat.Validate; Exchanges follow the
// trailing user message in order.
type Request struct {
	Messages  []chat.Message
	Exchanges []ToolExchange
	Tools     []tools.Specification
}

// Response is one completion.
type Response struct {
	Text         string
	ToolCalls    []tools.Request
	Usage        chat.TokenUsage
	FinishReason string
}

// ChatModel completes a conversation.
type ChatModel interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

// Image is a generated image reference.
type Image struct {
	URL    string `json:"url,omitempty"`
	Base64 string `json:"b64_json,omitempty"`
}

// ImageModel generates images from a prompt.
type ImageModel interface {
	Generate(ctx context.Context, prompt string) (*Image, error)
}

// EmbeddingModel turns texts into vectors.
type EmbeddingModel interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Capabilities lists the optional knobs a provider honours.
type Capabilities struct {
	Seed            bool
	JSONMode        bool
	JSONSchema      bool
	Thinking        bool
	ReasoningEffort bool
	Images          bool
	Embeddings      bool
}

// Provider is the capability interface every vendor variant implements.
type Provider interface {
	Type() string
	Capabilities() Capabilities
	ChatModel(cfg Config) (ChatModel, error)
	ImageModel(cfg Config) (ImageModel, error)
	EmbeddingModel(cfg Config) (EmbeddingModel, error)
}
