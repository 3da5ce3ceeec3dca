// Package modeltest provides a scripted chat model and provider for tests.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/model"
	"github.com/harun/agentrun/pkg/tools"
)

// Step produces the response for one Chat call.
type Step func(req model.Request) (*model.Response, error)

// ScriptedModel replays a fixed sequence of steps and records every request it receives.
type ScriptedModel struct {
	mu       sync.Mutex
	steps    []Step
	requests []model.Request
}

// NewScriptedModel creates a model that answers with steps in order.
func NewScriptedModel(steps ...Step) *ScriptedModel {
	return &ScriptedModel{steps: steps}
}

// Chat returns the next scripted response.
func (m *ScriptedModel) Chat(ctx context.Context, req model.Request) (*model.Response, error) {
	if err := chat.Validate(req.Messages); err != nil {
		return nil, err
	}

	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if idx >= len(m.steps) {
		return nil, fmt.Errorf("scripted model exhausted after %d calls", len(m.steps))
	}
	return m.steps[idx](req)
}

// Requests returns the requests received so far.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reply answers with fixed text.
func Reply(text string, usage chat.TokenUsage) Step {
	return func(model.Request) (*model.Response, error) {
		return &model.Response{Text: text, Usage: usage, FinishReason: "stop"}, nil
	}
}

// CallTools answers with tool calls.
func CallTools(calls ...tools.Request) Step {
	return func(model.Request) (*model.Response, error) {
		return &model.Response{
			ToolCalls:    calls,
			Usage:        chat.TokenUsage{InputTokens: 1, OutputTokens: 1, TotalTokens: 2},
			FinishReason: "tool_calls",
		}, nil
	}
}

// Fail answers with an error.
func Fail(err error) Step {
	return func(model.Request) (*model.Response, error) {
		return nil, err
	}
}

// Provider serves a fixed ChatModel with configurable capabilities.
type Provider struct {
	Chat model.ChatModel
	Caps model.Capabilities
}

// Type returns "scripted".
func (p *Provider) Type() string { return "scripted" }

// Capabilities returns the configured capabilities.
func (p *Provider) Capabilities() model.Capabilities { return p.Caps }

// ChatModel checks cfg and returns the scripted model.
func (p *Provider) ChatModel(cfg model.Config) (model.ChatModel, error) {
	if err := cfg.Check(p.Type(), p.Caps); err != nil {
		return nil, err
	}
	return p.Chat, nil
}

// ImageModel is unsupported.
func (p *Provider) ImageModel(cfg model.Config) (model.ImageModel, error) {
	return nil, model.ErrUnsupported
}

// EmbeddingModel is unsupported.
func (p *Provider) EmbeddingModel(cfg model.Config) (model.EmbeddingModel, error) {
	return nil, model.ErrUnsupported
}
