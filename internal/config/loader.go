package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AGENTRUN_MODEL_API_KEY.
const EnvPrefix = "AGENTRUN"

// secretKeys are read from the environment even when absent from the file.
var secretKeys = []string{
	"model.api_key",
	"model.base_url",
	"memory.redis.password",
	"memory.postgres.dsn",
	"tools.web_search.api_key",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// DefaultPath returns $HOME/.agentrun/agentrun.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".agentrun", "agentrun.json"), nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	path, err := DefaultPath()
	if err != nil {
		return ""
	}
	return path
}

// Load reads the config file over DefaultConfig and applies environment overrides. A missing
// file is not an error.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to resolve config path")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if data != nil {
		if err := restoreSchemas(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyDerivedDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// restoreSchemas re-reads the JSON schemas embedded in the file. Viper lowercases every key,
// which breaks schema keywords such as additionalProperties.
func restoreSchemas(data []byte, cfg *Config) error {
	var raw struct {
		Model struct {
			ResponseFormat *struct {
				Schema map[string]any `json:"schema"`
			} `json:"response_format"`
		} `json:"model"`
		Tools struct {
			Tasks []struct {
				Parameters map[string]any `json:"parameters"`
			} `json:"tasks"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if rf := raw.Model.ResponseFormat; rf != nil && rf.Schema != nil && cfg.Model.ResponseFormat != nil {
		cfg.Model.ResponseFormat.Schema = rf.Schema
	}
	for i, task := range raw.Tools.Tasks {
		if i < len(cfg.Tools.Tasks) && task.Parameters != nil {
			cfg.Tools.Tasks[i].Parameters = task.Parameters
		}
	}
	return nil
}

// applyDerivedDefaults fills paths that live under the data directory.
func applyDerivedDefaults(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".agentrun")
	}
	if cfg.Memory.SQLite.Path == "" {
		cfg.Memory.SQLite.Path = filepath.Join(cfg.DataDir, "memory.db")
	}
	if cfg.Retrievers.Workspace.DBPath == "" {
		cfg.Retrievers.Workspace.DBPath = filepath.Join(cfg.DataDir, "workspace.db")
	}
	if cfg.Outputs.Dir == "" {
		cfg.Outputs.Dir = filepath.Join(cfg.DataDir, "outputs")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "agentrun.log")
	}
	return nil
}

// Save writes cfg to the config path, creating its directory.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(cfg.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
