package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/harun/agentrun/pkg/memory"
	"github.com/harun/agentrun/pkg/model"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider checks that typ names a registered provider.
func (v *Validator) ValidateProvider(typ string) error {
	if typ == "" {
		return fmt.Errorf("model provider cannot be empty")
	}
	if !slices.Contains(model.Types(), typ) {
		return fmt.Errorf("invalid model provider %s (must be one of: %s)", typ, strings.Join(model.Types(), ", "))
	}
	return nil
}

// ValidateAPIKey validates an API key format. Local providers need no key.
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if provider == "ollama" {
		return nil
	}
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	}
	return nil
}

// ValidateSampling checks temperature and top_p ranges.
func (v *Validator) ValidateSampling(temperature, topP *float64) error {
	if temperature != nil && (*temperature < 0 || *temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %.2f", *temperature)
	}
	if topP != nil && (*topP < 0 || *topP > 1) {
		return fmt.Errorf("top_p must be between 0 and 1, got %.2f", *topP)
	}
	return nil
}

// ValidateBackend validates a memory backend name. Empty disables memory.
func (v *Validator) ValidateBackend(backend string) error {
	switch backend {
	case BackendNone, BackendSQLite, BackendRedis, BackendPostgres:
		return nil
	}
	return fmt.Errorf("invalid memory backend %s (must be: sqlite, redis, postgres)", backend)
}

// ValidateDropPolicy validates a drop policy name.
func (v *Validator) ValidateDropPolicy(policy string) error {
	_, err := memory.ParseDropPolicy(policy)
	return err
}

// ValidateWindow validates the memory window size.
func (v *Validator) ValidateWindow(window int) error {
	if window <= 0 {
		return fmt.Errorf("memory window must be positive, got %d", window)
	}
	return nil
}

// ValidateTTL validates the memory TTL. Zero means records never expire.
func (v *Validator) ValidateTTL(ttl time.Duration) error {
	if ttl < 0 {
		return fmt.Errorf("memory ttl must not be negative, got %s", ttl)
	}
	return nil
}
