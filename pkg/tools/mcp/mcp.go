// Package mcp exposes the tools of a Model Context Protocol server as agent tools. The server
// can be a local command, a docker container speaking stdio, or a streamable HTTP endpoint.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/tools"
)

// Transport kinds.
const (
	TransportStdio  = "stdio"
	TransportDocker = "docker"
	TransportHTTP   = "http"
)

// ServerConfig describes one tool server. String fields may reference extra variables,
// e.g. "{{ .work_dir }}".
type ServerConfig struct {
	Name      string            `json:"name" mapstructure:"name"`
	Transport string            `json:"transport" mapstructure:"transport"`
	Command   string            `json:"command,omitempty" mapstructure:"command"`
	Args      []string          `json:"args,omitempty" mapstructure:"args"`
	Env       map[string]string `json:"env,omitempty" mapstructure:"env"`
	Image     string            `json:"image,omitempty" mapstructure:"image"`
	Mounts    []string          `json:"mounts,omitempty" mapstructure:"mounts"` // host:container pairs
	URL       string            `json:"url,omitempty" mapstructure:"url"`
	Headers   map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Timeout   time.Duration     `json:"timeout,omitempty" mapstructure:"timeout"`
	Include   []string          `json:"include,omitempty" mapstructure:"include"` // tool names to expose, all when empty
}

// Validate checks that the transport has what it needs.
func (c ServerConfig) Validate() error {
	if c.Name == "" {
		return errors.New("mcp server name is required")
	}
	switch c.Transport {
	case TransportStdio:
		if c.Command == "" {
			return fmt.Errorf("mcp server %s: command is required for stdio transport", c.Name)
		}
	case TransportDocker:
		if c.Image == "" {
			return fmt.Errorf("mcp server %s: image is required for docker transport", c.Name)
		}
	case TransportHTTP:
		if c.URL == "" {
			return fmt.Errorf("mcp server %s: url is required for http transport", c.Name)
		}
	default:
		return fmt.Errorf("mcp server %s: unknown transport %q", c.Name, c.Transport)
	}
	return nil
}

type dialFunc func(ctx context.Context, vars map[string]string) (*client.Client, error)

// Provider connects to a tool server for each run and closes the connection afterwards.
type Provider struct {
	name    string
	include map[string]bool
	timeout time.Duration
	dial    dialFunc
	logger  zerolog.Logger

	mu      sync.Mutex
	clients []*client.Client
}

var (
	_ tools.Provider = (*Provider)(nil)
	_ tools.Killer   = (*Provider)(nil)
)

// New creates a provider for cfg.
func New(cfg ServerConfig, logger zerolog.Logger) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := newProvider(cfg.Name, cfg.Include, cfg.Timeout, logger)
	p.dial = func(ctx context.Context, vars map[string]string) (*client.Client, error) {
		return dial(ctx, cfg, vars)
	}
	return p, nil
}

// NewInProcess serves the tools of an in-process server. Useful for tools implemented in Go
// next to the host.
func NewInProcess(name string, srv *server.MCPServer, logger zerolog.Logger) *Provider {
	p := newProvider(name, nil, 0, logger)
	p.dial = func(ctx context.Context, vars map[string]string) (*client.Client, error) {
		c, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start in-process client: %w", err)
		}
		return c, nil
	}
	return p
}

func newProvider(name string, include []string, timeout time.Duration, logger zerolog.Logger) *Provider {
	p := &Provider{name: name, timeout: timeout, logger: logger}
	if len(include) > 0 {
		p.include = make(map[string]bool, len(include))
		for _, n := range include {
			p.include[n] = true
		}
	}
	return p
}

func dial(ctx context.Context, cfg ServerConfig, vars map[string]string) (*client.Client, error) {
	switch cfg.Transport {
	case TransportStdio:
		command, err := tools.Render(cfg.Command, vars)
		if err != nil {
			return nil, err
		}
		args, err := tools.RenderAll(cfg.Args, vars)
		if err != nil {
			return nil, err
		}
		env, err := renderEnv(cfg.Env, vars)
		if err != nil {
			return nil, err
		}
		return client.NewStdioMCPClient(command, env, args...)

	case TransportDocker:
		args, err := dockerArgs(cfg, vars)
		if err != nil {
			return nil, err
		}
		return client.NewStdioMCPClient("docker", nil, args...)

	case TransportHTTP:
		url, err := tools.Render(cfg.URL, vars)
		if err != nil {
			return nil, err
		}
		headers, err := tools.RenderMap(cfg.Headers, vars)
		if err != nil {
			return nil, err
		}
		opts := []transport.StreamableHTTPCOption{transport.WithHTTPHeaders(headers)}
		if cfg.Timeout > 0 {
			opts = append(opts, transport.WithHTTPTimeout(cfg.Timeout))
		}
		c, err := client.NewStreamableHttpClient(url, opts...)
		if err != nil {
			return nil, err
		}
		if err := c.Start(ctx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to start http transport: %w", err)
		}
		return c, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func renderEnv(env map[string]string, vars map[string]string) ([]string, error) {
	rendered, err := tools.RenderMap(env, vars)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rendered))
	for k, v := range rendered {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out, nil
}

// dockerArgs builds `docker run --rm -i` arguments for a stdio server in a container.
func dockerArgs(cfg ServerConfig, vars map[string]string) ([]string, error) {
	args := []string{"run", "--rm", "-i"}

	mounts, err := tools.RenderAll(cfg.Mounts, vars)
	if err != nil {
		return nil, err
	}
	for _, m := range mounts {
		args = append(args, "-v", m)
	}

	env, err := renderEnv(cfg.Env, vars)
	if err != nil {
		return nil, err
	}
	for _, e := range env {
		args = append(args, "-e", e)
	}

	image, err := tools.Render(cfg.Image, vars)
	if err != nil {
		return nil, err
	}
	args = append(args, image)

	rest, err := tools.RenderAll(cfg.Args, vars)
	if err != nil {
		return nil, err
	}
	return append(args, rest...), nil
}

// Name returns the server name.
func (p *Provider) Name() string { return p.name }

// Tools connects to the server, performs the protocol handshake and lists its tools.
func (p *Provider) Tools(ctx context.Context, rc tools.RunContext, vars map[string]string) (map[string]tools.Tool, error) {
	ctx, span := tracing.StartSpan(ctx, "agentrun.tools", "mcp.tools")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, p.logger)

	c, err := p.dial(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mcp server %s: %w", p.name, err)
	}
	p.mu.Lock()
	p.clients = append(p.clients, c)
	p.mu.Unlock()

	init := mcp.InitializeRequest{}
	init.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	init.Params.ClientInfo = mcp.Implementation{Name: "agentrun", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, init); err != nil {
		return nil, fmt.Errorf("failed to initialize mcp server %s: %w", p.name, err)
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools of mcp server %s: %w", p.name, err)
	}

	set := make(map[string]tools.Tool, len(listed.Tools))
	for _, t := range listed.Tools {
		if p.include != nil && !p.include[t.Name] {
			continue
		}
		params, err := inputSchema(t)
		if err != nil {
			return nil, fmt.Errorf("tool %s of mcp server %s: %w", t.Name, p.name, err)
		}
		set[t.Name] = tools.Tool{
			Spec: tools.Specification{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
			Executor: &executor{client: c, tool: t.Name, timeout: p.timeout},
		}
	}

	logger.Debug().Str("server", p.name).Int("tools", len(set)).Msg("MCP tools listed")
	return set, nil
}

func inputSchema(t mcp.Tool) (map[string]any, error) {
	raw := []byte(t.RawInputSchema)
	if len(raw) == 0 {
		var err error
		raw, err = json.Marshal(t.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode input schema: %w", err)
		}
	}
	schema := map[string]any{}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("failed to decode input schema: %w", err)
	}
	return schema, nil
}

type executor struct {
	client  *client.Client
	tool    string
	timeout time.Duration
}

func (e *executor) Execute(ctx context.Context, req tools.Request) (string, error) {
	args, err := tools.DecodeArguments(req.Arguments)
	if err != nil {
		return "", err
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	call := mcp.CallToolRequest{}
	call.Params.Name = e.tool
	call.Params.Arguments = args

	result, err := e.client.CallTool(ctx, call)
	if err != nil {
		return "", fmt.Errorf("mcp call %s failed: %w", e.tool, err)
	}

	text := resultText(result)
	if result.IsError {
		return "", fmt.Errorf("mcp tool %s reported an error: %s", e.tool, text)
	}
	return text, nil
}

// resultText joins the text parts of a result; structured content is used when there is no text.
func resultText(result *mcp.CallToolResult) string {
	var parts []string
	for _, content := range result.Content {
		if tc, ok := mcp.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	if len(parts) == 0 && result.StructuredContent != nil {
		if s, err := tools.Stringify(result.StructuredContent); err == nil {
			return s
		}
	}
	return strings.Join(parts, "\n")
}

// Close closes every connection opened by Tools. For stdio transports this also ends the
// server process.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	clients := p.clients
	p.clients = nil
	p.mu.Unlock()

	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Kill drops every connection without waiting for calls in flight.
func (p *Provider) Kill() {
	if err := p.Close(context.Background()); err != nil {
		p.logger.Warn().Err(err).Str("server", p.name).Msg("Failed to kill mcp connections")
	}
}
