package tasktool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/harun/agentrun/pkg/tools"
)

// CommandRunner runs a task's Command on the host. Each element is a template rendered with the
// call arguments, e.g. ["git", "log", "-n", "{{ .count }}"].
type CommandRunner struct {
	MaxOutput int // bytes of stdout kept, default 64 KiB
}

// Run executes the command and reports stdout and the exit code as outputs.
func (r CommandRunner) Run(ctx context.Context, req Request) (*Output, error) {
	if len(req.Task.Command) == 0 {
		return nil, fmt.Errorf("task %s has no command", req.Task.Name)
	}
	vars := make(map[string]string, len(req.Arguments))
	for k, v := range req.Arguments {
		s, err := tools.Stringify(v)
		if err != nil {
			return nil, err
		}
		vars[k] = s
	}
	argv, err := tools.RenderAll(req.Task.Command, vars)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	limit := r.MaxOutput
	if limit <= 0 {
		limit = 64 << 10
	}
	out := stdout.String()
	if len(out) > limit {
		out = out[:limit]
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return &Output{State: StateSuccess, Outputs: map[string]any{
			"stdout":      out,
			"exit_code":   0,
			"duration_ms": duration.Milliseconds(),
		}}, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		return &Output{
			State:   StateFailed,
			Outputs: map[string]any{"stdout": out, "exit_code": exitErr.ExitCode()},
			Error:   strings.TrimSpace(stderr.String()),
		}, nil
	default:
		return nil, err
	}
}
