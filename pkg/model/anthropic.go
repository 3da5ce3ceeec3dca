package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/tools"
)

const defaultAnthropicMaxTokens = 4096

// Anthropic implements Provider for Anthropic Claude.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates the Anthropic provider.
func NewAnthropic(creds Credentials) (*Anthropic, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...)}, nil
}

// Type returns the provider discriminator.
func (p *Anthropic) Type() string { return "anthropic" }

// Capabilities returns the supported knobs. Anthropic has no seed and no response format.
func (p *Anthropic) Capabilities() Capabilities {
	return Capabilities{Thinking: true}
}

// ChatModel returns a chat model bound to cfg.
func (p *Anthropic) ChatModel(cfg Config) (ChatModel, error) {
	if err := cfg.Check(p.Type(), p.Capabilities()); err != nil {
		return nil, err
	}
	return &anthropicChat{client: p.client, cfg: cfg}, nil
}

// ImageModel is not offered by Anthropic.
func (p *Anthropic) ImageModel(cfg Config) (ImageModel, error) {
	return nil, fmt.Errorf("%w: provider anthropic has no image model", ErrUnsupported)
}

// EmbeddingModel is not offered by Anthropic.
func (p *Anthropic) EmbeddingModel(cfg Config) (EmbeddingModel, error) {
	return nil, fmt.Errorf("%w: provider anthropic has no embedding model", ErrUnsupported)
}

type anthropicChat struct {
	client anthropic.Client
	cfg    Config
}

func (m *anthropicChat) Chat(ctx context.Context, req Request) (*Response, error) {
	if err := chat.Validate(req.Messages); err != nil {
		return nil, err
	}

	maxTokens := m.cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.cfg.Model),
		Messages:  anthropicMessages(req),
		MaxTokens: maxTokens,
	}
	for _, msg := range req.Messages {
		if msg.Role == chat.RoleSystem {
			params.System = []anthropic.TextBlockParam{{Text: msg.Content}}
		}
	}
	if m.cfg.Temperature != nil {
		params.Temperature = anthropic.Float(*m.cfg.Temperature)
	}
	if m.cfg.TopP != nil {
		params.TopP = anthropic.Float(*m.cfg.TopP)
	}
	if t := m.cfg.Thinking; t != nil && t.Enabled {
		// max_tokens must exceed the thinking budget
		if params.MaxTokens <= t.BudgetTokens {
			params.MaxTokens = t.BudgetTokens + defaultAnthropicMaxTokens
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(t.BudgetTokens)
	}
	if len(req.Tools) > 0 {
		params.Tools = anthropicTools(req.Tools)
	}

	response, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	out := &Response{
		FinishReason: string(response.StopReason),
		Usage: chat.TokenUsage{
			InputTokens:  response.Usage.InputTokens,
			OutputTokens: response.Usage.OutputTokens,
			TotalTokens:  response.Usage.InputTokens + response.Usage.OutputTokens,
		},
	}
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Text += b.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, tools.Request{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: b.JSON.Input.Raw(),
			})
		}
	}
	return out, nil
}

func anthropicMessages(req Request) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages)+2*len(req.Exchanges))
	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case chat.RoleAI:
			// the API requires the conversation to open with a user turn
			if len(messages) == 0 {
				continue
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
			})
		}
	}

	for _, ex := range req.Exchanges {
		blocks := []anthropic.ContentBlockParamUnion{}
		if ex.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(ex.Text))
		}
		for _, c := range ex.Calls {
			input := json.RawMessage(c.Arguments)
			if len(input) == 0 || !json.Valid(input) {
				input = json.RawMessage("{}")
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(c.ID, input, c.Name))
		}
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRoleAssistant,
			Content: blocks,
		})

		results := make([]anthropic.ContentBlockParamUnion, 0, len(ex.Results))
		for _, r := range ex.Results {
			results = append(results, anthropic.NewToolResultBlock(r.CallID, r.Content, false))
		}
		if len(results) > 0 {
			messages = append(messages, anthropic.NewUserMessage(results...))
		}
	}
	return messages
}

func anthropicTools(specs []tools.Specification) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		param := anthropic.ToolParam{
			Name:        spec.Name,
			Description: anthropic.String(spec.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: spec.Parameters["properties"],
			},
		}
		switch required := spec.Parameters["required"].(type) {
		case []string:
			param.InputSchema.Required = required
		case []any:
			for _, r := range required {
				if s, ok := r.(string); ok {
					param.InputSchema.Required = append(param.InputSchema.Required, s)
				}
			}
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &param})
	}
	return out
}
