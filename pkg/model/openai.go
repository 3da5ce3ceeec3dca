package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/tools"
)

const defaultOllamaBaseURL = "http://localhost:11434/v1"

// OpenAI implements Provider for the OpenAI API and compatible servers.
type OpenAI struct {
	typ    string
	client openai.Client
	caps   Capabilities
}

// NewOpenAI creates the OpenAI provider.
func NewOpenAI(creds Credentials) (*OpenAI, error) {
	if creds.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(creds.APIKey)}
	if creds.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(creds.BaseURL))
	}
	return &OpenAI{
		typ:    "openai",
		client: openai.NewClient(opts...),
		caps: Capabilities{
			Seed:            true,
			JSONMode:        true,
			JSONSchema:      true,
			ReasoningEffort: true,
			Images:          true,
			Embeddings:      true,
		},
	}, nil
}

// NewOllama creates a provider for a local Ollama server through its OpenAI-compatible API.
func NewOllama(creds Credentials) (*OpenAI, error) {
	baseURL := creds.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	key := creds.APIKey
	if key == "" {
		key = "ollama"
	}
	return &OpenAI{
		typ:    "ollama",
		client: openai.NewClient(option.WithAPIKey(key), option.WithBaseURL(baseURL)),
		caps: Capabilities{
			Seed:       true,
			JSONMode:   true,
			JSONSchema: true,
			Embeddings: true,
		},
	}, nil
}

// Type returns the provider discriminator.
func (p *OpenAI) Type() string { return p.typ }

// Capabilities returns the supported knobs.
func (p *OpenAI) Capabilities() Capabilities { return p.caps }

// ChatModel returns a chat model bound to cfg.
func (p *OpenAI) ChatModel(cfg Config) (ChatModel, error) {
	if err := cfg.Check(p.typ, p.caps); err != nil {
		return nil, err
	}
	return &openAIChat{client: p.client, cfg: cfg}, nil
}

// ImageModel returns an image model bound to cfg.ImageModel.
func (p *OpenAI) ImageModel(cfg Config) (ImageModel, error) {
	if !p.caps.Images {
		return nil, fmt.Errorf("%w: provider %s has no image model", ErrUnsupported, p.typ)
	}
	name := cfg.ImageModel
	if name == "" {
		name = string(openai.ImageModelDallE3)
	}
	return &openAIImage{client: p.client, model: name}, nil
}

// EmbeddingModel returns an embedding model bound to cfg.EmbeddingModel.
func (p *OpenAI) EmbeddingModel(cfg Config) (EmbeddingModel, error) {
	if !p.caps.Embeddings {
		return nil, fmt.Errorf("%w: provider %s has no embedding model", ErrUnsupported, p.typ)
	}
	name := cfg.EmbeddingModel
	if name == "" {
		name = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	dim := cfg.EmbeddingDimension
	if dim == 0 {
		dim = embeddingDimension(name)
	}
	return &openAIEmbedding{client: p.client, model: name, dimension: dim}, nil
}

type openAIChat struct {
	client openai.Client
	cfg    Config
}

func (m *openAIChat) Chat(ctx context.Context, req Request) (*Response, error) {
	if err := chat.Validate(req.Messages); err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.cfg.Model),
		Messages: openAIMessages(req),
	}
	if m.cfg.Temperature != nil {
		params.Temperature = openai.Float(*m.cfg.Temperature)
	}
	if m.cfg.TopP != nil {
		params.TopP = openai.Float(*m.cfg.TopP)
	}
	if m.cfg.Seed != nil {
		params.Seed = openai.Int(*m.cfg.Seed)
	}
	if m.cfg.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(m.cfg.MaxTokens)
	}
	if m.cfg.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(m.cfg.ReasoningEffort)
	}
	if rf := m.cfg.ResponseFormat; rf != nil {
		switch rf.Type {
		case FormatJSON:
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
			}
		case FormatJSONSchema:
			name := rf.Name
			if name == "" {
				name = "response"
			}
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
					JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:   name,
						Schema: rf.Schema,
						Strict: openai.Bool(true),
					},
				},
			}
		}
	}
	if len(req.Tools) > 0 {
		params.Tools = openAITools(req.Tools)
	}

	response, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	choice := response.Choices[0]
	out := &Response{
		Text:         choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		Usage: chat.TokenUsage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
			TotalTokens:  response.Usage.TotalTokens,
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, tools.Request{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

func openAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+2*len(req.Exchanges))
	for _, msg := range req.Messages {
		switch msg.Role {
		case chat.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case chat.RoleUser:
			messages = append(messages, openai.UserMessage(msg.Content))
		case chat.RoleAI:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		}
	}

	for _, ex := range req.Exchanges {
		calls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(ex.Calls))
		for _, c := range ex.Calls {
			calls = append(calls, openai.ChatCompletionMessageToolCallParam{
				ID: c.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      c.Name,
					Arguments: c.Arguments,
				},
			})
		}
		assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
		if ex.Text != "" {
			assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: openai.String(ex.Text),
			}
		}
		messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})

		for _, r := range ex.Results {
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					ToolCallID: r.CallID,
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(r.Content),
					},
				},
			})
		}
	}
	return messages
}

func openAITools(specs []tools.Specification) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, spec := range specs {
		params := spec.Parameters
		if params == nil {
			params = tools.ObjectSchema(map[string]any{})
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        spec.Name,
				Description: openai.String(spec.Description),
				Parameters:  openai.FunctionParameters(params),
			},
		})
	}
	return out
}

type openAIImage struct {
	client openai.Client
	model  string
}

func (m *openAIImage) Generate(ctx context.Context, prompt string) (*Image, error) {
	resp, err := m.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: prompt,
		Model:  openai.ImageModel(m.model),
		N:      openai.Int(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no image returned")
	}
	return &Image{URL: resp.Data[0].URL, Base64: resp.Data[0].B64JSON}, nil
}

type openAIEmbedding struct {
	client    openai.Client
	model     string
	dimension int
}

func (m *openAIEmbedding) Dimension() int { return m.dimension }

func (m *openAIEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := m.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(m.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	data := resp.Data
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

func embeddingDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "nomic-embed-text":
		return 768
	default:
		return 1536
	}
}
