package tools

import (
	"context"
	"sync"
)

// StaticProvider serves a fixed tool set. Template markers in descriptions are rendered with
// the run's extra variables.
type StaticProvider struct {
	name  string
	tools []Tool

	mu     sync.Mutex
	closed bool
}

// NewStatic creates a provider for a fixed set of tools.
func NewStatic(name string, set ...Tool) *StaticProvider {
	return &StaticProvider{name: name, tools: set}
}

// Name returns the provider name.
func (p *StaticProvider) Name() string { return p.name }

// Tools returns the fixed set keyed by name.
func (p *StaticProvider) Tools(ctx context.Context, rc RunContext, vars map[string]string) (map[string]Tool, error) {
	out := make(map[string]Tool, len(p.tools))
	for _, t := range p.tools {
		desc, err := Render(t.Spec.Description, vars)
		if err != nil {
			return nil, err
		}
		t.Spec.Description = desc
		out[t.Spec.Name] = t
	}
	return out, nil
}

// Close marks the provider closed. Closing twice is a no-op.
func (p *StaticProvider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (p *StaticProvider) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Func builds a tool from a handler taking decoded arguments. Arguments are validated against
// the parameter schema before the handler runs.
func Func(spec Specification, fn func(ctx context.Context, args map[string]any) (any, error)) (Tool, error) {
	validator, err := NewValidator(spec)
	if err != nil {
		return Tool{}, err
	}
	exec := ExecutorFunc(func(ctx context.Context, req Request) (string, error) {
		args, err := DecodeArguments(req.Arguments)
		if err != nil {
			return "", err
		}
		if err := validator.Validate(args); err != nil {
			return "", err
		}
		result, err := fn(ctx, args)
		if err != nil {
			return "", err
		}
		return Stringify(result)
	})
	return Tool{Spec: spec, Executor: exec}, nil
}
