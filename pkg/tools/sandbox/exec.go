package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Command is one program to run.
type Command struct {
	Language string
	Code     string
	WorkDir  string
	Env      map[string]string
}

// buildCmd returns the argv for cmd under cfg's runtime.
func buildCmd(cfg Config, cmd Command) ([]string, error) {
	interp, ok := interpreters[cmd.Language]
	if !ok || !languageAllowed(cfg, cmd.Language) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, cmd.Language)
	}
	if err := checkFilesystemAccess(cfg, cmd.WorkDir); err != nil {
		return nil, err
	}
	if cfg.Runtime == RuntimeDocker {
		return append([]string{"docker"}, dockerRunArgs(cfg, cmd, interp)...), nil
	}
	return interp, nil
}

func languageAllowed(cfg Config, lang string) bool {
	if len(cfg.Languages) == 0 {
		return true
	}
	for _, l := range cfg.Languages {
		if l == lang {
			return true
		}
	}
	return false
}

func dockerRunArgs(cfg Config, cmd Command, interp []string) []string {
	args := []string{"run", "--rm", "-i", "--init"}

	network := strings.TrimSpace(cfg.Docker.Network)
	if network == "" {
		if cfg.Network {
			network = "bridge"
		} else {
			network = "none"
		}
	}
	args = append(args, "--network", network)

	if cfg.Limits.MaxCPU > 0 {
		cpus := float64(cfg.Limits.MaxCPU) / 100.0
		args = append(args, "--cpus", strconv.FormatFloat(cpus, 'f', 2, 64))
	}
	if cfg.Limits.MaxMemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", cfg.Limits.MaxMemoryMB))
	}
	if cfg.Limits.MaxProcesses > 0 {
		args = append(args, "--pids-limit", strconv.Itoa(cfg.Limits.MaxProcesses))
	}
	if cfg.ReadOnly {
		args = append(args, "--read-only")
	}
	if user := strings.TrimSpace(cfg.Docker.User); user != "" {
		args = append(args, "--user", user)
	}
	for _, opt := range cfg.Docker.SecurityOpt {
		if trimmed := strings.TrimSpace(opt); trimmed != "" {
			args = append(args, "--security-opt", trimmed)
		}
	}
	for _, c := range cfg.Docker.CapDrop {
		if trimmed := strings.TrimSpace(c); trimmed != "" {
			args = append(args, "--cap-drop", trimmed)
		}
	}
	args = append(args, cfg.Docker.ExtraArgs...)

	if wd := strings.TrimSpace(cmd.WorkDir); wd != "" {
		mode := "rw"
		if cfg.ReadOnly {
			mode = "ro"
		}
		wd = filepath.Clean(wd)
		args = append(args, "-v", fmt.Sprintf("%s:/workspace:%s", wd, mode), "-w", "/workspace")
	}

	env := mergeEnv(cfg.Env, cmd.Env)
	for _, kv := range env {
		args = append(args, "-e", kv)
	}

	args = append(args, cfg.Docker.Image)
	return append(args, interp...)
}

func checkFilesystemAccess(cfg Config, path string) error {
	if path == "" {
		return nil
	}
	clean := filepath.Clean(path)
	for _, denied := range cfg.DeniedPaths {
		if clean == denied || strings.HasPrefix(clean, denied+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s", ErrFilesystemAccessDenied, path)
		}
	}
	return nil
}

// mergeEnv renders env maps as sorted KEY=VALUE pairs, later maps winning.
func mergeEnv(maps ...map[string]string) []string {
	merged := map[string]string{}
	for _, m := range maps {
		for k, v := range m {
			merged[k] = v
		}
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// waitDelay bounds how long Wait blocks on output pipes after the process was killed.
const waitDelay = time.Second

// run executes argv with code on stdin.
func run(ctx context.Context, cfg Config, argv []string, cmd Command) (Result, error) {
	timeout := cfg.Limits.Timeout
	if timeout == 0 {
		timeout = DefaultConfig().Limits.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(execCtx, argv[0], argv[1:]...)
	c.Stdin = strings.NewReader(cmd.Code)
	c.WaitDelay = waitDelay
	isolate(c)
	if cfg.Runtime == RuntimeHost {
		c.Dir = cmd.WorkDir
		c.Env = append([]string{"PATH=/usr/local/bin:/usr/bin:/bin", "HOME=/tmp"}, mergeEnv(cfg.Env, cmd.Env)...)
	}

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	duration := time.Since(start)

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return Result{}, fmt.Errorf("%w after %s", ErrExecutionTimeout, timeout)
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	exitCode := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("failed to run %s: %w", argv[0], err)
		}
		exitCode = exitErr.ExitCode()
	}

	out, outCut := truncate(stdout.String(), cfg.Limits.MaxOutputBytes)
	errOut, errCut := truncate(stderr.String(), cfg.Limits.MaxOutputBytes)
	return Result{
		Language:  cmd.Language,
		ExitCode:  exitCode,
		Stdout:    out,
		Stderr:    errOut,
		Truncated: outCut || errCut,
		Duration:  duration,
	}, nil
}

func truncate(s string, max int) (string, bool) {
	if max <= 0 || len(s) <= max {
		return s, false
	}
	return s[:max], true
}
