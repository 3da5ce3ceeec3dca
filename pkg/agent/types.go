package agent

import (
	"time"

	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
	"github.com/harun/agentrun/pkg/outputs"
	"github.com/harun/agentrun/pkg/retriever"
	"github.com/harun/agentrun/pkg/tools"
)

// State is a step of the invocation state machine.
type State int

const (
	StateInit State = iota
	StateBuild
	StateAttachMemory
	StateAttachRetrievers
	StateInvoke
	StateComplete
	StateFailed
	StateCleanup
	StateTerminal
)

var stateNames = [...]string{
	"INIT", "BUILD", "ATTACH_MEMORY", "ATTACH_RETRIEVERS", "INVOKE",
	"COMPLETE", "FAILED", "CLEANUP", "TERMINAL",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Spec is everything one invocation consumes besides the built agent.
type Spec struct {
	AgentID string
	System  string // optional rendered system message
	Prompt  string // required rendered user prompt

	Tools     []tools.Provider
	Variables map[string]string // extra variables handed to tool providers

	Retrievers []retriever.Retriever

	Memory   *memory.Manager
	MemoryID string

	WorkDir     string
	Outputs     *outputs.Gatherer
	OutputFiles []string

	// OnState, if set, observes every state transition.
	OnState func(State)
}

// ToolExecution is one entry of the ordered tool trace.
type ToolExecution struct {
	CallID    string        `json:"call_id"`
	Name      string        `json:"name"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result"`
	Executed  bool          `json:"executed"`
	Duration  time.Duration `json:"duration"`
}

// Timing is one run-scoped timing sample.
type Timing struct {
	Name     string            `json:"name"`
	Duration time.Duration     `json:"duration"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Result is the outcome of a successful invocation.
type Result struct {
	RunID          string              `json:"run_id"`
	Text           string              `json:"text"`
	Structured     any                 `json:"structured,omitempty"`
	Usage          chat.TokenUsage     `json:"usage"`
	FinishReason   string              `json:"finish_reason"`
	ToolExecutions []ToolExecution     `json:"tool_executions,omitempty"`
	Sources        []retriever.Content `json:"sources,omitempty"`
	OutputFiles    map[string]string   `json:"output_files"`
	Timings        []Timing            `json:"timings,omitempty"`
}
