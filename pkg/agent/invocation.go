package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/agentrun/internal/observability"
	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/chat"
	"github.com/harun/agentrun/pkg/memory"
	"github.com/harun/agentrun/pkg/model"
	"github.com/harun/agentrun/pkg/retriever"
	"github.com/harun/agentrun/pkg/tools"
)

const defaultAgentID = "agent"

// guard is one acquired resource released during cleanup.
type guard struct {
	kind    string
	name    string
	release func(ctx context.Context) error
}

// invocation is the per-run state. It is never shared between runs.
type invocation struct {
	agent   *Agent
	spec    Spec
	agentID string
	runID   string
	logger  zerolog.Logger

	state  State
	guards []guard
	memory *memory.ChatMemory
}

// Invoke runs exactly one user turn. Every resource acquired along the way is released before
// Invoke returns, whatever the outcome; a release failure is logged and never replaces the
// returned result or error.
func (a *Agent) Invoke(ctx context.Context, spec Spec) (res *Result, err error) {
	if strings.TrimSpace(spec.Prompt) == "" {
		return nil, a.reject(ctx, spec, &ConfigurationError{Reason: "prompt is required"})
	}
	if spec.Memory != nil && spec.MemoryID == "" {
		return nil, a.reject(ctx, spec, &ConfigurationError{Reason: "memory id is required when memory is attached"})
	}

	agentID := spec.AgentID
	if agentID == "" {
		agentID = defaultAgentID
	}
	ctx = tracing.NewRunContext(ctx, agentID)
	if spec.MemoryID != "" {
		ctx = tracing.WithMemoryID(ctx, spec.MemoryID)
	}
	runID := tracing.GetRunID(ctx)

	ctx, span := tracing.StartSpan(ctx, "agentrun.agent", "agent.invoke",
		attribute.String("agent.id", agentID),
		attribute.String("agent.run_id", runID),
		attribute.String("agent.provider", a.providerType),
		attribute.String("agent.model", a.cfg.Model),
	)

	collector := &observability.Collector{}
	observability.Register(runID, collector.Listen)

	inv := &invocation{
		agent:   a,
		spec:    spec,
		agentID: agentID,
		runID:   runID,
		logger:  tracing.LoggerFromContext(ctx, a.logger),
	}
	inv.transition(StateInit)
	start := time.Now()

	defer func() {
		inv.transition(StateCleanup)
		inv.releaseAll(ctx)
		if res != nil {
			res.Timings = timings(collector.Events())
		}
		observability.Clear(runID)
		inv.transition(StateTerminal)

		duration := time.Since(start)
		a.metrics.RecordRun(a.providerType, duration, err == nil)
		status := "success"
		if err != nil {
			status = "failed"
		}
		observability.RecordRunAudit(ctx, agentID, status, map[string]interface{}{
			"run_id":      runID,
			"provider":    a.providerType,
			"duration_ms": duration.Milliseconds(),
		})
		tracing.EndSpan(span, err)
	}()

	res, err = inv.run(ctx)
	if err != nil {
		inv.transition(StateFailed)
		inv.logger.Error().Err(err).Msg("Invocation failed")
		return nil, err
	}
	inv.logger.Info().
		Int64("total_tokens", res.Usage.TotalTokens).
		Int("tool_calls", len(res.ToolExecutions)).
		Dur("duration", time.Since(start)).
		Msg("Invocation completed")
	return res, nil
}

// reject closes the handed-over tool providers of a spec refused before the run started.
func (a *Agent) reject(ctx context.Context, spec Spec, err error) error {
	ctx = tracing.Detach(ctx)
	for _, p := range spec.Tools {
		if cerr := p.Close(ctx); cerr != nil {
			a.logger.Warn().Err(cerr).Str("provider", p.Name()).Msg("Failed to close tool provider")
			observability.RecordTeardownError("tool")
		}
	}
	return err
}

func (inv *invocation) run(ctx context.Context) (*Result, error) {
	spec := inv.spec

	inv.transition(StateBuild)
	toolset, err := inv.attachTools(ctx)
	if err != nil {
		return nil, err
	}

	var history []chat.Message
	if spec.Memory != nil {
		inv.transition(StateAttachMemory)
		if history, err = inv.attachMemory(ctx); err != nil {
			return nil, err
		}
	}

	prompt := spec.Prompt
	var sources []retriever.Content
	if len(spec.Retrievers) > 0 {
		inv.transition(StateAttachRetrievers)
		router := retriever.NewRouter(inv.logger, spec.Retrievers...)
		if sources, err = router.Route(ctx, spec.Prompt); err != nil {
			return nil, fmt.Errorf("failed to retrieve content: %w", err)
		}
		prompt = retriever.Inject(prompt, sources)
	}

	inv.transition(StateInvoke)
	messages := make([]chat.Message, 0, len(history)+2)
	if strings.TrimSpace(spec.System) != "" {
		messages = append(messages, chat.System(spec.System))
	}
	messages = append(messages, chat.WithoutSystem(history)...)
	messages = append(messages, chat.User(prompt))
	if err := chat.Validate(messages); err != nil {
		return nil, &ConfigurationError{Reason: "invalid message list", Err: err}
	}

	resp, usage, executions, err := inv.invoke(ctx, messages, toolset)
	if err != nil {
		return nil, err
	}
	structured, err := decodeStructured(inv.agent.cfg.ResponseFormat, resp.Text)
	if err != nil {
		return nil, err
	}

	inv.transition(StateComplete)

	if inv.memory != nil {
		// The original prompt is stored; retrieved context is recomputed on every run.
		inv.memory.Add(chat.User(spec.Prompt), chat.AI(resp.Text))
		if err := inv.memory.Close(ctx); err != nil {
			return nil, err
		}
	}

	files := map[string]string{}
	if spec.Outputs != nil && len(spec.OutputFiles) > 0 {
		if files, err = spec.Outputs.Gather(ctx, inv.runID, spec.WorkDir, spec.OutputFiles); err != nil {
			return nil, fmt.Errorf("failed to gather output files: %w", err)
		}
	}

	// Tokens count only for runs that return a result.
	inv.agent.metrics.RecordTokens(inv.agent.providerType, usage.InputTokens, usage.OutputTokens, usage.TotalTokens)

	return &Result{
		RunID:          inv.runID,
		Text:           resp.Text,
		Structured:     structured,
		Usage:          usage,
		FinishReason:   resp.FinishReason,
		ToolExecutions: executions,
		Sources:        sources,
		OutputFiles:    files,
	}, nil
}

// attachTools registers a close guard for every provider before asking any of them for tools,
// so providers that acquired resources are released even when a later provider fails.
func (inv *invocation) attachTools(ctx context.Context) (map[string]tools.Tool, error) {
	if len(inv.spec.Tools) == 0 {
		return map[string]tools.Tool{}, nil
	}
	for _, p := range inv.spec.Tools {
		if p == nil {
			continue
		}
		provider := p
		inv.guards = append(inv.guards, guard{kind: "tool", name: provider.Name(), release: provider.Close})
	}

	vars := make(map[string]string, len(inv.spec.Variables)+1)
	for k, v := range inv.spec.Variables {
		vars[k] = v
	}
	if _, ok := vars["work_dir"]; !ok && inv.spec.WorkDir != "" {
		vars["work_dir"] = inv.spec.WorkDir
	}

	rc := tools.RunContext{
		RunID:    inv.runID,
		AgentID:  inv.agentID,
		MemoryID: inv.spec.MemoryID,
		WorkDir:  inv.spec.WorkDir,
	}
	done := observability.Timer(ctx, "agent.attach_tools")
	toolset, err := tools.Assemble(ctx, inv.logger, rc, inv.spec.Tools, vars)
	done(map[string]string{"providers": fmt.Sprint(len(inv.spec.Tools))})
	if err != nil {
		return nil, &ConfigurationError{Reason: "tool assembly failed", Err: err}
	}
	inv.logger.Debug().Int("tools", len(toolset)).Msg("Tools attached")
	return toolset, nil
}

func (inv *invocation) attachMemory(ctx context.Context) ([]chat.Message, error) {
	mem, err := inv.spec.Memory.Open(ctx, inv.spec.MemoryID)
	if err != nil {
		return nil, err
	}
	inv.memory = mem
	inv.guards = append(inv.guards, guard{kind: "memory", name: inv.spec.Memory.Backend(), release: mem.Close})

	history := mem.Messages()
	inv.logger.Debug().Int("messages", len(history)).Msg("Memory attached")
	return history, nil
}

// invoke runs the completion and every tool round it requests. The model sees tool
// specifications only while the call budget lasts.
func (inv *invocation) invoke(ctx context.Context, messages []chat.Message, toolset map[string]tools.Tool) (*model.Response, chat.TokenUsage, []ToolExecution, error) {
	var usage chat.TokenUsage
	var executions []ToolExecution

	specs := tools.Specifications(toolset)
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })

	budget := inv.agent.budget
	used := 0
	starved := 0
	req := model.Request{Messages: messages}

	for {
		req.Tools = nil
		if used < budget && len(specs) > 0 {
			req.Tools = specs
		}

		done := observability.Timer(ctx, "model.chat")
		resp, err := inv.agent.chat.Chat(ctx, req)
		done(map[string]string{"provider": inv.agent.providerType})
		if err != nil {
			return nil, usage, nil, fmt.Errorf("model call failed: %w", err)
		}
		usage.Add(resp.Usage)

		if len(resp.ToolCalls) == 0 {
			return resp, usage, executions, nil
		}
		if req.Tools == nil && used >= budget {
			starved++
			if starved > 1 {
				return nil, usage, nil, ErrToolLoop
			}
		}

		exchange := model.ToolExchange{Text: resp.Text}
		for _, call := range resp.ToolCalls {
			if call.ID == "" {
				id, err := gonanoid.New()
				if err != nil {
					return nil, usage, nil, fmt.Errorf("failed to generate call id: %w", err)
				}
				call.ID = id
			}

			exec := ToolExecution{CallID: call.ID, Name: call.Name, Arguments: call.Arguments}
			if used >= budget {
				exec.Result = fmt.Sprintf("Tool call not executed: the limit of %d tool calls for this run is reached.", budget)
				inv.logger.Warn().Str("tool", call.Name).Str("call_id", call.ID).Msg("Tool call budget exhausted")
			} else {
				used++
				start := time.Now()
				out, err := inv.executeTool(ctx, toolset, call)
				if err != nil {
					return nil, usage, nil, err
				}
				exec.Result = out
				exec.Executed = true
				exec.Duration = time.Since(start)
			}

			executions = append(executions, exec)
			exchange.Calls = append(exchange.Calls, call)
			exchange.Results = append(exchange.Results, model.ToolResult{CallID: call.ID, Name: call.Name, Content: exec.Result})
		}
		req.Exchanges = append(req.Exchanges, exchange)
	}
}

func (inv *invocation) executeTool(ctx context.Context, toolset map[string]tools.Tool, call tools.Request) (out string, err error) {
	logger := inv.logger.With().Str("tool", call.Name).Str("call_id", call.ID).Logger()

	tool, ok := toolset[call.Name]
	if !ok {
		err := &ToolArgumentsError{Tool: call.Name, CallID: call.ID, Err: ErrUnknownTool}
		logger.Error().Err(err).Msg("Model called an unknown tool")
		return "", err
	}

	ctx, span := tracing.StartSpan(ctx, "agentrun.agent", "agent.tool",
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	)
	defer func() { tracing.EndSpan(span, err) }()

	start := time.Now()
	out, execErr := tool.Executor.Execute(ctx, call)
	duration := time.Since(start)

	inv.agent.metrics.RecordToolExecution(call.Name, duration, execErr == nil)
	observability.Emit(ctx, "tool.execute", duration, map[string]string{"tool": call.Name, "call_id": call.ID})
	status := "success"
	if execErr != nil {
		status = "failed"
	}
	observability.RecordToolAudit(ctx, call.Name, inv.agentID, status, map[string]interface{}{
		"call_id":     call.ID,
		"run_id":      inv.runID,
		"duration_ms": duration.Milliseconds(),
	})

	if execErr != nil {
		if errors.Is(execErr, tools.ErrInvalidArguments) {
			err = &ToolArgumentsError{Tool: call.Name, CallID: call.ID, Err: execErr}
			logger.Error().Err(execErr).Msg("Tool arguments rejected")
		} else {
			err = &ToolExecutionError{Tool: call.Name, CallID: call.ID, Err: execErr}
			logger.Error().Err(execErr).Msg("Tool execution failed")
		}
		return "", err
	}

	logger.Debug().Dur("duration", duration).Int("result_bytes", len(out)).Msg("Tool executed")
	return out, nil
}

// releaseAll releases guards in reverse acquisition order. Each guard is released on its own:
// an error or panic in one is logged and the rest still run.
func (inv *invocation) releaseAll(ctx context.Context) {
	ctx = tracing.Detach(ctx)
	for i := len(inv.guards) - 1; i >= 0; i-- {
		g := inv.guards[i]
		if err := release(ctx, g); err != nil {
			inv.logger.Warn().Err(err).
				Str("resource", g.kind).
				Str("name", g.name).
				Msg("Failed to release resource")
			observability.RecordTeardownError(g.kind)
		}
	}
	inv.guards = nil
}

func release(ctx context.Context, g guard) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while releasing %s %s: %v", g.kind, g.name, r)
		}
	}()
	return g.release(ctx)
}

func (inv *invocation) transition(s State) {
	inv.state = s
	inv.logger.Trace().Str("state", s.String()).Msg("State transition")
	if inv.spec.OnState != nil {
		inv.spec.OnState(s)
	}
}

func timings(events []observability.Event) []Timing {
	out := make([]Timing, 0, len(events))
	for _, ev := range events {
		out = append(out, Timing{Name: ev.Name, Duration: ev.Duration, Attrs: ev.Attrs})
	}
	return out
}
