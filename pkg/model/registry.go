package model

import (
	"fmt"
	"sort"
)

// Credentials identify the account a provider talks to.
type Credentials struct {
	APIKey  string `json:"api_key" mapstructure:"api_key"`
	BaseURL string `json:"base_url,omitempty" mapstructure:"base_url"`
}

// Factory creates a provider from credentials.
type Factory func(creds Credentials) (Provider, error)

var registry = map[string]Factory{
	"openai":    func(c Credentials) (Provider, error) { return NewOpenAI(c) },
	"anthropic": func(c Credentials) (Provider, error) { return NewAnthropic(c) },
	"ollama":    func(c Credentials) (Provider, error) { return NewOllama(c) },
}

// New returns the provider registered under typ.
func New(typ string, creds Credentials) (Provider, error) {
	factory, ok := registry[typ]
	if !ok {
		return nil, fmt.Errorf("unsupported provider type: %s", typ)
	}
	return factory(creds)
}

// Types lists the registered provider discriminators.
func Types() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
