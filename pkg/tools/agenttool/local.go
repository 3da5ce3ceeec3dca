// Package agenttool exposes other agents as tools: a nested agent built in-process, or a remote
// agent reached over the agent-to-agent JSON-RPC protocol.
package agenttool

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/agent"
	"github.com/harun/agentrun/pkg/retriever"
	"github.com/harun/agentrun/pkg/tools"
)

// LocalConfig configures a nested agent tool.
type LocalConfig struct {
	Name        string // tool name, also the child's agent id
	Description string
	Agent       *agent.Agent
	System      string

	// Tools are owned by the nested tool: they stay open across calls and are closed or
	// killed together with it.
	Tools      []tools.Provider
	Retrievers []retriever.Retriever
	Logger     zerolog.Logger
}

// Local runs a child invocation for every call.
type Local struct {
	cfg      LocalConfig
	inflight inflight
}

var (
	_ tools.Provider = (*Local)(nil)
	_ tools.Killer   = (*Local)(nil)
)

// NewLocal creates a nested agent tool.
func NewLocal(cfg LocalConfig) (*Local, error) {
	if cfg.Name == "" {
		return nil, errors.New("agent tool name is required")
	}
	if cfg.Agent == nil {
		return nil, errors.New("agent tool requires a built agent")
	}
	if cfg.Description == "" {
		cfg.Description = "Delegate a task to the " + cfg.Name + " agent and return its answer"
	}
	return &Local{cfg: cfg}, nil
}

// Name returns "agent:<name>".
func (l *Local) Name() string { return "agent:" + l.cfg.Name }

// Tools returns one tool taking a prompt.
func (l *Local) Tools(ctx context.Context, rc tools.RunContext, vars map[string]string) (map[string]tools.Tool, error) {
	desc, err := tools.Render(l.cfg.Description, vars)
	if err != nil {
		return nil, err
	}
	spec := tools.Specification{
		Name:        l.cfg.Name,
		Description: desc,
		Parameters: tools.ObjectSchema(map[string]any{
			"prompt": tools.Property("string", "Task for the agent, self-contained"),
		}, "prompt"),
	}

	tool, err := tools.Func(spec, func(ctx context.Context, args map[string]any) (any, error) {
		prompt, _ := args["prompt"].(string)
		return l.Run(ctx, prompt, rc.WorkDir, vars)
	})
	if err != nil {
		return nil, err
	}
	return map[string]tools.Tool{l.cfg.Name: tool}, nil
}

// Run invokes the child agent once and returns its answer.
func (l *Local) Run(ctx context.Context, prompt, workDir string, vars map[string]string) (answer string, err error) {
	ctx, done, err := l.inflight.begin(ctx)
	if err != nil {
		return "", err
	}
	defer done()

	parentRun := tracing.GetRunID(ctx)
	ctx = tracing.PropagateToChild(ctx, l.cfg.Name)
	ctx, span := tracing.StartSpan(ctx, "agentrun.tools", "agenttool.local",
		attribute.String("agent.child", l.cfg.Name),
		attribute.String("agent.parent_run_id", parentRun),
	)
	defer func() { tracing.EndSpan(span, err) }()

	borrowed := make([]tools.Provider, 0, len(l.cfg.Tools))
	for _, p := range l.cfg.Tools {
		borrowed = append(borrowed, borrowedProvider{p})
	}

	res, err := l.cfg.Agent.Invoke(ctx, agent.Spec{
		AgentID:    l.cfg.Name,
		System:     l.cfg.System,
		Prompt:     prompt,
		Tools:      borrowed,
		Variables:  vars,
		Retrievers: l.cfg.Retrievers,
		WorkDir:    workDir,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ErrKilled
		}
		return "", fmt.Errorf("nested agent %s failed: %w", l.cfg.Name, err)
	}

	logger := tracing.LoggerFromContext(ctx, l.cfg.Logger)
	logger.Debug().
		Str("parent_run_id", parentRun).
		Int64("total_tokens", res.Usage.TotalTokens).
		Msg("Nested agent completed")
	return res.Text, nil
}

// Close rejects further calls and closes the child providers.
func (l *Local) Close(ctx context.Context) error {
	l.inflight.close()
	var errs []error
	for _, p := range l.cfg.Tools {
		if err := p.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Kill cancels running child invocations and kills child providers that support it.
func (l *Local) Kill() {
	l.inflight.cancelAll()
	for _, p := range l.cfg.Tools {
		if k, ok := p.(tools.Killer); ok {
			k.Kill()
		}
	}
}

// borrowedProvider lends a provider to a child invocation without letting the child close it.
type borrowedProvider struct {
	tools.Provider
}

func (borrowedProvider) Close(context.Context) error { return nil }
