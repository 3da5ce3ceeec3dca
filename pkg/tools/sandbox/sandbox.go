// Package sandbox runs model-written code on the host or in an ephemeral docker container and
// exposes it as the execute_code tool.
package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// Runtime selects where code runs.
type Runtime string

const (
	RuntimeHost   Runtime = "host"
	RuntimeDocker Runtime = "docker"
)

var (
	ErrInvalidRuntime         = errors.New("invalid sandbox runtime")
	ErrInvalidCPULimit        = errors.New("invalid CPU limit (must be 0-100)")
	ErrInvalidMemoryLimit     = errors.New("invalid memory limit (must be >= 0)")
	ErrInvalidProcessLimit    = errors.New("invalid process limit (must be >= 0)")
	ErrInvalidTimeout         = errors.New("invalid timeout (must be >= 0)")
	ErrUnsupportedLanguage    = errors.New("unsupported language")
	ErrExecutionTimeout       = errors.New("execution timed out")
	ErrFilesystemAccessDenied = errors.New("filesystem access denied")
	ErrClosed                 = errors.New("sandbox is closed")
	ErrKilled                 = errors.New("sandbox execution was killed")
)

// Limits constrains one execution.
type Limits struct {
	MaxCPU         int           `json:"max_cpu" mapstructure:"max_cpu"` // percentage of one core, docker only
	MaxMemoryMB    int           `json:"max_memory_mb" mapstructure:"max_memory_mb"`
	MaxProcesses   int           `json:"max_processes" mapstructure:"max_processes"`
	Timeout        time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxOutputBytes int           `json:"max_output_bytes" mapstructure:"max_output_bytes"`
}

// DockerConfig holds docker runtime settings.
type DockerConfig struct {
	Image       string   `json:"image" mapstructure:"image"`
	Network     string   `json:"network" mapstructure:"network"`
	User        string   `json:"user" mapstructure:"user"`
	SecurityOpt []string `json:"security_opt" mapstructure:"security_opt"`
	CapDrop     []string `json:"cap_drop" mapstructure:"cap_drop"`
	ExtraArgs   []string `json:"extra_args" mapstructure:"extra_args"`
}

// Config defines sandbox configuration.
type Config struct {
	Runtime     Runtime           `json:"runtime" mapstructure:"runtime"`
	Languages   []string          `json:"languages" mapstructure:"languages"` // empty allows every known language
	Limits      Limits            `json:"limits" mapstructure:"limits"`
	Docker      DockerConfig      `json:"docker" mapstructure:"docker"`
	Env         map[string]string `json:"env" mapstructure:"env"`
	DeniedPaths []string          `json:"denied_paths" mapstructure:"denied_paths"`
	Network     bool              `json:"network" mapstructure:"network"`
	ReadOnly    bool              `json:"read_only" mapstructure:"read_only"`
}

// DefaultConfig returns a default sandbox configuration.
func DefaultConfig() Config {
	return Config{
		Runtime: RuntimeHost,
		Limits: Limits{
			MaxCPU:         50,
			MaxMemoryMB:    512,
			MaxProcesses:   64,
			Timeout:        30 * time.Second,
			MaxOutputBytes: 64 * 1024,
		},
		Docker: DockerConfig{
			Image:       "python:3.12-alpine",
			SecurityOpt: []string{"no-new-privileges"},
			CapDrop:     []string{"ALL"},
		},
		DeniedPaths: []string{"/etc", "/sys", "/proc"},
	}
}

// ValidateConfig validates a sandbox configuration.
func ValidateConfig(cfg Config) error {
	switch cfg.Runtime {
	case RuntimeHost, RuntimeDocker:
	default:
		return ErrInvalidRuntime
	}
	if cfg.Limits.MaxCPU < 0 || cfg.Limits.MaxCPU > 100 {
		return ErrInvalidCPULimit
	}
	if cfg.Limits.MaxMemoryMB < 0 {
		return ErrInvalidMemoryLimit
	}
	if cfg.Limits.MaxProcesses < 0 {
		return ErrInvalidProcessLimit
	}
	if cfg.Limits.Timeout < 0 {
		return ErrInvalidTimeout
	}
	for _, lang := range cfg.Languages {
		if _, ok := interpreters[lang]; !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
		}
	}
	return nil
}

// interpreters maps a language to a command that reads the program from stdin.
var interpreters = map[string][]string{
	"python": {"python3", "-"},
	"bash":   {"bash", "-s"},
	"sh":     {"sh", "-s"},
	"node":   {"node", "-"},
}

// Result is what execute_code returns to the model.
type Result struct {
	Language  string        `json:"language"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Truncated bool          `json:"truncated,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}
