// Package config loads the agentrun configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/agentrun/pkg/memory/redisstore"
	"github.com/harun/agentrun/pkg/model"
	"github.com/harun/agentrun/pkg/tools/agenttool"
	"github.com/harun/agentrun/pkg/tools/mcp"
	"github.com/harun/agentrun/pkg/tools/sandbox"
	"github.com/harun/agentrun/pkg/tools/tasktool"
	"github.com/harun/agentrun/pkg/tools/websearch"
)

// Memory backends.
const (
	BackendNone     = ""
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config represents the agentrun configuration
type Config struct {
	Agent      AgentConfig      `json:"agent" mapstructure:"agent"`
	Model      ModelConfig      `json:"model" mapstructure:"model"`
	Memory     MemoryConfig     `json:"memory" mapstructure:"memory"`
	Tools      ToolsConfig      `json:"tools" mapstructure:"tools"`
	Retrievers RetrieversConfig `json:"retrievers" mapstructure:"retrievers"`
	Outputs    OutputsConfig    `json:"outputs" mapstructure:"outputs"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
	Tracing    TracingConfig    `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AgentConfig holds the identity and instructions of the agent.
type AgentConfig struct {
	ID      string `json:"id" mapstructure:"id"`
	System  string `json:"system" mapstructure:"system"`
	WorkDir string `json:"work_dir" mapstructure:"work_dir"`
}

// ModelConfig selects the provider and carries the model knobs.
type ModelConfig struct {
	Provider     string `json:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	APIKey       string `json:"api_key" mapstructure:"api_key"`
	BaseURL      string `json:"base_url" mapstructure:"base_url"`
	model.Config `mapstructure:",squash"`
}

// MemoryConfig holds conversational memory settings
type MemoryConfig struct {
	Backend    string            `json:"backend" mapstructure:"backend"` // sqlite, redis, postgres or empty to disable
	Window     int               `json:"window" mapstructure:"window"`
	TTL        time.Duration     `json:"ttl" mapstructure:"ttl"`
	DropPolicy string            `json:"drop_policy" mapstructure:"drop_policy"`
	SQLite     SQLiteConfig      `json:"sqlite" mapstructure:"sqlite"`
	Redis      redisstore.Config `json:"redis" mapstructure:"redis"`
	Postgres   PostgresConfig    `json:"postgres" mapstructure:"postgres"`
}

// SQLiteConfig holds the embedded backend settings
type SQLiteConfig struct {
	Path  string `json:"path" mapstructure:"path"`
	Table string `json:"table" mapstructure:"table"`
}

// PostgresConfig holds the Postgres backend settings
type PostgresConfig struct {
	DSN   string `json:"dsn" mapstructure:"dsn"`
	Table string `json:"table" mapstructure:"table"`
}

// ToolsConfig holds tool provider configuration
type ToolsConfig struct {
	MCP       []mcp.ServerConfig       `json:"mcp" mapstructure:"mcp"`
	Sandbox   SandboxConfig            `json:"sandbox" mapstructure:"sandbox"`
	WebSearch WebSearchConfig          `json:"web_search" mapstructure:"web_search"`
	Tasks     []tasktool.Definition    `json:"tasks" mapstructure:"tasks"`
	Agents    []agenttool.RemoteConfig `json:"agents" mapstructure:"agents"`
}

// SandboxConfig enables code execution.
type SandboxConfig struct {
	Enabled        bool `json:"enabled" mapstructure:"enabled"`
	sandbox.Config `mapstructure:",squash"`
}

// WebSearchConfig enables web search.
type WebSearchConfig struct {
	Enabled          bool `json:"enabled" mapstructure:"enabled"`
	websearch.Config `mapstructure:",squash"`
}

// RetrieversConfig holds retriever configuration
type RetrieversConfig struct {
	Workspace WorkspaceConfig `json:"workspace" mapstructure:"workspace"`
}

// WorkspaceConfig configures the workspace markdown index.
type WorkspaceConfig struct {
	Enabled  bool    `json:"enabled" mapstructure:"enabled"`
	Path     string  `json:"path" mapstructure:"path"`
	DBPath   string  `json:"db_path" mapstructure:"db_path"`
	Limit    int     `json:"limit" mapstructure:"limit"`
	MinScore float64 `json:"min_score" mapstructure:"min_score"`
	Watch    bool    `json:"watch" mapstructure:"watch"`
	Tools    bool    `json:"tools" mapstructure:"tools"` // also expose workspace_* tools
}

// OutputsConfig declares output files gathered after a run.
type OutputsConfig struct {
	Dir   string   `json:"dir" mapstructure:"dir"`
	Files []string `json:"files" mapstructure:"files"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{ID: "agent"},
		Model: ModelConfig{
			Provider: "openai",
			Config:   model.Config{Model: "gpt-4o-mini"},
		},
		Memory: MemoryConfig{
			Window:     10,
			TTL:        24 * time.Hour,
			DropPolicy: "KEEP",
			SQLite:     SQLiteConfig{Table: "chat_memory"},
			Redis:      redisstore.Config{Addr: "localhost:6379", KeyPrefix: redisstore.DefaultKeyPrefix},
			Postgres:   PostgresConfig{Table: "chat_memory"},
		},
		Tools: ToolsConfig{
			Sandbox:   SandboxConfig{Config: sandbox.DefaultConfig()},
			WebSearch: WebSearchConfig{Config: websearch.Config{Engine: "searxng", MaxResults: 5, Timeout: 30 * time.Second}},
		},
		Retrievers: RetrieversConfig{
			Workspace: WorkspaceConfig{Limit: 5},
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{ServiceName: "agentrun"},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()
	var errs []error

	if err := v.ValidateProvider(c.Model.Provider); err != nil {
		errs = append(errs, err)
	} else if err := v.ValidateAPIKey(c.Model.APIKey, c.Model.Provider); err != nil {
		errs = append(errs, err)
	}
	if c.Model.Model == "" {
		errs = append(errs, errors.New("model name is required"))
	}
	if err := v.ValidateSampling(c.Model.Temperature, c.Model.TopP); err != nil {
		errs = append(errs, err)
	}
	if c.Model.MaxSequentialToolsInvocations < 0 {
		errs = append(errs, errors.New("max_sequential_tools_invocations must not be negative"))
	}

	if err := v.ValidateBackend(c.Memory.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.Memory.Backend != BackendNone {
		if err := v.ValidateDropPolicy(c.Memory.DropPolicy); err != nil {
			errs = append(errs, err)
		}
		if err := v.ValidateWindow(c.Memory.Window); err != nil {
			errs = append(errs, err)
		}
		if err := v.ValidateTTL(c.Memory.TTL); err != nil {
			errs = append(errs, err)
		}
		if c.Memory.Backend == BackendPostgres && c.Memory.Postgres.DSN == "" {
			errs = append(errs, errors.New("memory.postgres.dsn is required for the postgres backend"))
		}
	}

	for i, s := range c.Tools.MCP {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("tools.mcp[%d]: %w", i, err))
		}
	}
	if c.Tools.Sandbox.Enabled {
		if err := sandbox.ValidateConfig(c.Tools.Sandbox.Config); err != nil {
			errs = append(errs, fmt.Errorf("tools.sandbox: %w", err))
		}
	}
	if c.Retrievers.Workspace.Enabled && c.Retrievers.Workspace.Path == "" {
		errs = append(errs, errors.New("retrievers.workspace.path is required when the workspace retriever is enabled"))
	}
	if len(c.Outputs.Files) > 0 && c.Agent.WorkDir == "" {
		errs = append(errs, errors.New("agent.work_dir is required when output files are declared"))
	}

	return errors.Join(errs...)
}
