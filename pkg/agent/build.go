package agent

import (
	"errors"

	"github.com/rs/zerolog"

	"github.com/harun/agentrun/internal/metrics"
	"github.com/harun/agentrun/pkg/model"
)

// Agent is a built, read-only invocation handle. It is safe to invoke concurrently; every
// Invoke owns its own state.
type Agent struct {
	providerType string
	chat         model.ChatModel
	cfg          model.Config
	budget       int
	logger       zerolog.Logger
	metrics      *metrics.Metrics
}

// Option customises Build.
type Option func(*Agent)

// WithLogger sets the base logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithMetrics records counters on m instead of the process-wide default.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// Build validates cfg against provider and returns an Agent. Every failure is a
// *ConfigurationError and is never worth retrying.
func Build(provider model.Provider, cfg model.Config, opts ...Option) (*Agent, error) {
	if provider == nil {
		return nil, &ConfigurationError{Reason: "model provider is required"}
	}

	chat, err := provider.ChatModel(cfg)
	if err != nil {
		reason := "invalid model configuration"
		if errors.Is(err, model.ErrUnsupported) {
			reason = "configuration not supported by provider " + provider.Type()
		}
		return nil, &ConfigurationError{Reason: reason, Err: err}
	}
	if cfg.ResponseFormat != nil && cfg.ResponseFormat.Type == model.FormatJSONSchema {
		if _, err := compileSchema(cfg.ResponseFormat.Schema); err != nil {
			return nil, &ConfigurationError{Reason: "invalid response schema", Err: err}
		}
	}

	a := &Agent{
		providerType: provider.Type(),
		chat:         chat,
		cfg:          cfg,
		budget:       cfg.ToolBudget(),
		logger:       zerolog.Nop(),
		metrics:      metrics.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// ProviderType returns the type of the provider the agent was built from.
func (a *Agent) ProviderType() string { return a.providerType }

// ToolBudget returns the maximum number of tool calls per invocation.
func (a *Agent) ToolBudget() int { return a.budget }

// Config returns a copy of the model configuration.
func (a *Agent) Config() model.Config { return a.cfg }
