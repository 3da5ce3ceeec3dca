// Package tasktool exposes tasks of the host workflow engine as tools. The engine plugs in
// through Runner; CommandRunner is a host-process runner used by the CLI.
package tasktool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/tools"
)

var (
	// ErrClosed is returned for calls made after the provider was closed.
	ErrClosed = errors.New("task tool is closed")
	// ErrKilled is returned for tasks interrupted by Kill.
	ErrKilled = errors.New("task was killed")
	// ErrTaskFailed is wrapped when the runner reports a failed task.
	ErrTaskFailed = errors.New("task failed")
)

// Task states reported by runners.
const (
	StateSuccess = "SUCCESS"
	StateFailed  = "FAILED"
)

// Definition declares one task the model may run.
type Definition struct {
	Name        string            `json:"name" mapstructure:"name"`
	Description string            `json:"description" mapstructure:"description"`
	Type        string            `json:"type" mapstructure:"type"`
	Parameters  map[string]any    `json:"parameters,omitempty" mapstructure:"parameters"` // JSON schema of the arguments
	Defaults    map[string]string `json:"defaults,omitempty" mapstructure:"defaults"`     // rendered with the run variables
	Command     []string          `json:"command,omitempty" mapstructure:"command"`       // used by CommandRunner
}

// Request is one task execution.
type Request struct {
	RunID     string
	Task      Definition
	Arguments map[string]any
	WorkDir   string
}

// Output is what a runner reports back.
type Output struct {
	State   string         `json:"state"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Runner executes tasks on behalf of the host engine.
type Runner interface {
	Run(ctx context.Context, req Request) (*Output, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, req Request) (*Output, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, req Request) (*Output, error) { return f(ctx, req) }

// Provider exposes a set of task definitions.
type Provider struct {
	runner Runner
	defs   []Definition
	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[int]context.CancelFunc
	next     int
	closed   bool
}

var (
	_ tools.Provider = (*Provider)(nil)
	_ tools.Killer   = (*Provider)(nil)
)

// New creates a provider. Task names must be unique.
func New(runner Runner, defs []Definition, logger zerolog.Logger) (*Provider, error) {
	if runner == nil {
		return nil, errors.New("task runner is required")
	}
	seen := map[string]bool{}
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("task name is required")
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate task %q", d.Name)
		}
		seen[d.Name] = true
	}
	return &Provider{runner: runner, defs: defs, logger: logger, inflight: map[int]context.CancelFunc{}}, nil
}

// Name returns "tasks".
func (p *Provider) Name() string { return "tasks" }

// Tools returns one tool per definition.
func (p *Provider) Tools(ctx context.Context, rc tools.RunContext, vars map[string]string) (map[string]tools.Tool, error) {
	out := make(map[string]tools.Tool, len(p.defs))
	for _, def := range p.defs {
		def := def
		desc, err := tools.Render(def.Description, vars)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", def.Name, err)
		}
		defaults, err := tools.RenderMap(def.Defaults, vars)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", def.Name, err)
		}
		params := def.Parameters
		if params == nil {
			params = tools.ObjectSchema(map[string]any{})
		}

		spec := tools.Specification{Name: def.Name, Description: desc, Parameters: params}
		tool, err := tools.Func(spec, func(ctx context.Context, args map[string]any) (any, error) {
			merged := make(map[string]any, len(defaults)+len(args))
			for k, v := range defaults {
				merged[k] = v
			}
			for k, v := range args {
				merged[k] = v
			}
			return p.Execute(ctx, Request{RunID: rc.RunID, Task: def, Arguments: merged, WorkDir: rc.WorkDir})
		})
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", def.Name, err)
		}
		out[def.Name] = tool
	}
	return out, nil
}

// Execute runs one task and returns its outputs.
func (p *Provider) Execute(ctx context.Context, req Request) (outputs map[string]any, err error) {
	ctx, span := tracing.StartSpan(ctx, "agentrun.tools", "tasktool.execute",
		attribute.String("task.name", req.Task.Name),
		attribute.String("task.type", req.Task.Type),
	)
	defer func() { tracing.EndSpan(span, err) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	id := p.next
	p.next++
	p.inflight[id] = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.inflight, id)
		p.mu.Unlock()
	}()

	out, err := p.runner.Run(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ErrKilled
		}
		return nil, fmt.Errorf("failed to run task %s: %w", req.Task.Name, err)
	}
	if out == nil {
		return map[string]any{}, nil
	}
	if out.State == StateFailed {
		return nil, fmt.Errorf("%w: %s: %s", ErrTaskFailed, req.Task.Name, out.Error)
	}

	logger := tracing.LoggerFromContext(ctx, p.logger)
	logger.Debug().
		Str("task", req.Task.Name).
		Str("state", out.State).
		Strs("outputs", keys(out.Outputs)).
		Msg("Task completed")
	if out.Outputs == nil {
		return map[string]any{}, nil
	}
	return out.Outputs, nil
}

// Close rejects further tasks.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Kill cancels tasks in flight.
func (p *Provider) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cancel := range p.inflight {
		cancel()
		delete(p.inflight, id)
	}
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
