package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidArguments marks failures caused by the arguments of a call rather than by the tool
// itself. Executors wrap it so callers can tell the two apart.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Specification describes a tool to the model.
type Specification struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON schema of the argument object
}

// Request is one model-issued tool call.
type Request struct {
	ID        string `json:"id"` // correlation id assigned by the model
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON argument payload
}

// Executor runs a tool call.
type Executor interface {
	Execute(ctx context.Context, req Request) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Tool pairs a specification with its executor.
type Tool struct {
	Spec     Specification
	Executor Executor
}

// RunContext carries the identity of the run a provider assembles tools for.
type RunContext struct {
	RunID    string
	AgentID  string
	MemoryID string
	WorkDir  string
}

// Provider produces tools for one run. Close releases whatever the provider acquired while
// assembling (processes, connections, child invocations) after the run completes.
type Provider interface {
	Name() string
	Tools(ctx context.Context, rc RunContext, vars map[string]string) (map[string]Tool, error)
	Close(ctx context.Context) error
}

// Killer is implemented by providers that can interrupt work still in flight. Kill is best
// effort and distinct from Close.
type Killer interface {
	Kill()
}

// DecodeArguments unmarshals a raw argument payload into an object. An empty payload decodes
// to an empty map.
func DecodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("%w: failed to parse: %v", ErrInvalidArguments, err)
	}
	return args, nil
}

// Stringify renders a handler result as the string handed back to the model.
func Stringify(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case []byte:
		return string(val), nil
	case fmt.Stringer:
		return val.String(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode tool result: %w", err)
	}
	return string(data), nil
}
