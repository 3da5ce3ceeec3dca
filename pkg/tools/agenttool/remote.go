package agenttool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2aclient"
	"github.com/a2aproject/a2a-go/a2aclient/agentcard"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/tools"
)

// RemoteConfig configures a remote agent tool.
type RemoteConfig struct {
	Name        string            `json:"name" mapstructure:"name"`
	Description string            `json:"description" mapstructure:"description"` // fetched from the agent card when empty
	URL         string            `json:"url" mapstructure:"url"`
	Headers     map[string]string `json:"headers" mapstructure:"headers"`
	Timeout     time.Duration     `json:"timeout" mapstructure:"timeout"`

	HTTPClient *http.Client   `json:"-" mapstructure:"-"`
	Logger     zerolog.Logger `json:"-" mapstructure:"-"`
}

// Remote calls an agent over the A2A JSON-RPC transport.
type Remote struct {
	cfg        RemoteConfig
	httpClient *http.Client
	inflight   inflight

	mu     sync.Mutex
	client *a2aclient.Client
}

var (
	_ tools.Provider = (*Remote)(nil)
	_ tools.Killer   = (*Remote)(nil)
)

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

// NewRemote creates a remote agent tool.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.Name == "" {
		return nil, errors.New("remote agent name is required")
	}
	if cfg.URL == "" {
		return nil, errors.New("remote agent url is required")
	}

	client := &http.Client{}
	if cfg.HTTPClient != nil {
		c := *cfg.HTTPClient
		client = &c
	}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	if len(cfg.Headers) > 0 {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client.Transport = &headerTransport{base: base, headers: cfg.Headers}
	}
	return &Remote{cfg: cfg, httpClient: client}, nil
}

// Name returns "a2a:<name>".
func (r *Remote) Name() string { return "a2a:" + r.cfg.Name }

// Tools returns one tool taking a prompt. Without a configured description the agent card is
// fetched.
func (r *Remote) Tools(ctx context.Context, rc tools.RunContext, vars map[string]string) (map[string]tools.Tool, error) {
	desc := r.cfg.Description
	if desc == "" {
		card, err := r.Card(ctx)
		if err != nil {
			return nil, err
		}
		desc = card.Description
	}
	if desc == "" {
		desc = "Delegate a task to the remote " + r.cfg.Name + " agent"
	}

	spec := tools.Specification{
		Name:        r.cfg.Name,
		Description: desc,
		Parameters: tools.ObjectSchema(map[string]any{
			"prompt": tools.Property("string", "Task for the agent, self-contained"),
		}, "prompt"),
	}
	tool, err := tools.Func(spec, func(ctx context.Context, args map[string]any) (any, error) {
		prompt, _ := args["prompt"].(string)
		return r.Send(ctx, prompt, rc.RunID)
	})
	if err != nil {
		return nil, err
	}
	return map[string]tools.Tool{r.cfg.Name: tool}, nil
}

// Card resolves the agent card published under the remote's well-known path.
func (r *Remote) Card(ctx context.Context) (*a2a.AgentCard, error) {
	card, err := agentcard.NewResolver(r.httpClient).Resolve(ctx, r.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch agent card: %w", err)
	}
	return card, nil
}

// protocolClient returns the A2A client, creating it on first use.
func (r *Remote) protocolClient(ctx context.Context) (*a2aclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	endpoints := []a2a.AgentInterface{{URL: r.cfg.URL, Transport: a2a.TransportProtocolJSONRPC}}
	// The client outlives the call that created it.
	client, err := a2aclient.NewFromEndpoints(context.WithoutCancel(ctx), endpoints, a2aclient.WithJSONRPCTransport(r.httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create client for remote agent %s: %w", r.cfg.Name, err)
	}
	r.client = client
	return client, nil
}

// Send delivers prompt as a user message and returns the text of the reply.
func (r *Remote) Send(ctx context.Context, prompt, contextID string) (answer string, err error) {
	ctx, done, err := r.inflight.begin(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	ctx, span := tracing.StartSpan(ctx, "agentrun.tools", "agenttool.remote",
		attribute.String("agent.remote", r.cfg.Name),
		attribute.String("agent.url", r.cfg.URL),
	)
	defer func() { tracing.EndSpan(span, err) }()

	client, err := r.protocolClient(ctx)
	if err != nil {
		return "", err
	}

	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: prompt})
	msg.ContextID = contextID

	result, err := client.SendMessage(ctx, &a2a.MessageSendParams{Message: msg})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ErrKilled
		}
		return "", fmt.Errorf("failed to call remote agent %s: %w", r.cfg.Name, err)
	}

	answer, err = resultText(result)
	if err != nil {
		return "", err
	}

	logger := tracing.LoggerFromContext(ctx, r.cfg.Logger)
	logger.Debug().
		Str("remote", r.cfg.Name).
		Str("message_id", msg.ID).
		Msg("Remote agent answered")
	return answer, nil
}

// resultText reads the answer of a direct message reply or of a finished task.
func resultText(result a2a.SendMessageResult) (string, error) {
	switch v := result.(type) {
	case *a2a.Message:
		return joinText(v.Parts), nil
	case *a2a.Task:
		switch v.Status.State {
		case a2a.TaskStateFailed, a2a.TaskStateRejected, a2a.TaskStateCanceled:
			reason := ""
			if v.Status.Message != nil {
				reason = joinText(v.Status.Message.Parts)
			}
			return "", fmt.Errorf("remote task %s: %s", v.Status.State, reason)
		}
		var texts []string
		for _, a := range v.Artifacts {
			if t := joinText(a.Parts); t != "" {
				texts = append(texts, t)
			}
		}
		if len(texts) == 0 && v.Status.Message != nil {
			return joinText(v.Status.Message.Parts), nil
		}
		return strings.Join(texts, "\n"), nil
	}
	return "", fmt.Errorf("unexpected remote result %T", result)
}

// joinText concatenates the text parts; other part kinds are skipped.
func joinText(parts a2a.ContentParts) string {
	texts := make([]string, 0, len(parts))
	for _, p := range parts {
		switch tp := p.(type) {
		case a2a.TextPart:
			if tp.Text != "" {
				texts = append(texts, tp.Text)
			}
		case *a2a.TextPart:
			if tp != nil && tp.Text != "" {
				texts = append(texts, tp.Text)
			}
		}
	}
	return strings.Join(texts, "\n")
}

// Close rejects further calls and releases the protocol client.
func (r *Remote) Close(ctx context.Context) error {
	r.inflight.close()

	r.mu.Lock()
	client := r.client
	r.client = nil
	r.mu.Unlock()

	var err error
	if client != nil {
		err = client.Destroy()
	}
	r.httpClient.CloseIdleConnections()
	return err
}

// Kill cancels requests in flight.
func (r *Remote) Kill() {
	r.inflight.cancelAll()
}
