package sandbox

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/tools"
)

// ToolName is the name of the code execution tool.
const ToolName = "execute_code"

// Provider exposes execute_code. Executions still running when Kill is called are cancelled.
type Provider struct {
	cfg    Config
	logger zerolog.Logger

	mu       sync.Mutex
	inflight map[int]context.CancelFunc
	nextID   int
	closed   bool
}

var (
	_ tools.Provider = (*Provider)(nil)
	_ tools.Killer   = (*Provider)(nil)
)

// New validates cfg and creates a provider.
func New(cfg Config, logger zerolog.Logger) (*Provider, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Provider{cfg: cfg, logger: logger, inflight: map[int]context.CancelFunc{}}, nil
}

// Name returns "sandbox".
func (p *Provider) Name() string { return "sandbox" }

func (p *Provider) languages() []string {
	if len(p.cfg.Languages) > 0 {
		return p.cfg.Languages
	}
	langs := make([]string, 0, len(interpreters))
	for l := range interpreters {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Tools returns execute_code bound to the run's working directory.
func (p *Provider) Tools(ctx context.Context, rc tools.RunContext, vars map[string]string) (map[string]tools.Tool, error) {
	workDir := rc.WorkDir
	if wd, ok := vars["work_dir"]; ok && wd != "" {
		workDir = wd
	}

	langs := make([]any, 0)
	for _, l := range p.languages() {
		langs = append(langs, l)
	}
	language := tools.Property("string", "Programming language of the code")
	language["enum"] = langs

	spec := tools.Specification{
		Name:        ToolName,
		Description: "Execute code in an isolated sandbox and return its exit code, stdout and stderr",
		Parameters: tools.ObjectSchema(map[string]any{
			"language": language,
			"code":     tools.Property("string", "Program source, read from stdin by the interpreter"),
		}, "language", "code"),
	}

	tool, err := tools.Func(spec, func(ctx context.Context, args map[string]any) (any, error) {
		lang, _ := args["language"].(string)
		code, _ := args["code"].(string)
		return p.Execute(ctx, Command{Language: lang, Code: code, WorkDir: workDir})
	})
	if err != nil {
		return nil, err
	}
	return map[string]tools.Tool{ToolName: tool}, nil
}

// Execute runs one program.
func (p *Provider) Execute(ctx context.Context, cmd Command) (Result, error) {
	ctx, span := tracing.StartSpan(ctx, "agentrun.tools", "sandbox.execute")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, p.logger)

	argv, err := buildCmd(p.cfg, cmd)
	if err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Result{}, ErrClosed
	}
	id := p.nextID
	p.nextID++
	p.inflight[id] = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.inflight, id)
		p.mu.Unlock()
	}()

	result, err := run(ctx, p.cfg, argv, cmd)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return Result{}, ErrKilled
		}
		return Result{}, err
	}

	logger.Debug().
		Str("runtime", string(p.cfg.Runtime)).
		Str("language", cmd.Language).
		Int("exit_code", result.ExitCode).
		Dur("duration", result.Duration).
		Msg("Code executed in sandbox")
	return result, nil
}

// Close rejects further executions. Executions in flight finish normally.
func (p *Provider) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Kill cancels every execution in flight.
func (p *Provider) Kill() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, cancel := range p.inflight {
		cancel()
		delete(p.inflight, id)
	}
}
