package agent

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is wrapped by ToolArgumentsError when the model calls a tool that is not
// attached to the invocation.
var ErrUnknownTool = errors.New("unknown tool")

// ErrToolLoop is returned when the model keeps requesting tools after its budget ran out.
var ErrToolLoop = errors.New("model kept requesting tools after the budget was exhausted")

// ConfigurationError reports an unsupported or contradictory provider/configuration
// combination, or a missing required value.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ToolArgumentsError reports tool-call arguments produced by the model that could not be
// parsed or validated.
type ToolArgumentsError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolArgumentsError) Unwrap() error { return e.Err }

// ToolExecutionError reports a tool executor that failed.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Err    error
}

func (e *ToolExecutionError) Error() string {
	return fmt.Sprintf("tool %s failed (call %s): %v", e.Tool, e.CallID, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }
