package memory

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/agentrun/internal/observability"
	"github.com/harun/agentrun/internal/tracing"
	"github.com/harun/agentrun/pkg/chat"
)

// DefaultWindowSize is used when Config.WindowSize is not positive.
const DefaultWindowSize = 10

// Config configures a Manager.
type Config struct {
	Store      Store
	WindowSize int
	TTL        time.Duration // zero means records never expire
	DropPolicy DropPolicy
	Logger     zerolog.Logger
}

// Manager applies drop policy, windowing and TTL on top of a Store.
type Manager struct {
	store  Store
	window int
	ttl    time.Duration
	policy DropPolicy
	logger zerolog.Logger
}

// NewManager creates a manager.
func NewManager(cfg Config) (*Manager, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, errors.New("memory store is required")
	}
	policy := cfg.DropPolicy
	if policy == "" {
		policy = Keep
	}
	if _, err := ParseDropPolicy(string(policy)); err != nil {
		return nil, err
	}
	if cfg.TTL < 0 {
		return nil, errors.New("memory ttl must not be negative")
	}
	window := cfg.WindowSize
	if window <= 0 {
		window = DefaultWindowSize
	}

	return &Manager{
		store:  cfg.Store,
		window: window,
		ttl:    cfg.TTL,
		policy: policy,
		logger: cfg.Logger,
	}, nil
}

// Policy returns the configured drop policy.
func (m *Manager) Policy() DropPolicy { return m.policy }

// Backend returns the store name.
func (m *Manager) Backend() string { return m.store.Name() }

// Load returns up to the window size of most recent messages for memoryID. Under
// BeforeTaskRun an existing record is deleted and an empty history is returned.
func (m *Manager) Load(ctx context.Context, memoryID string) (messages []chat.Message, err error) {
	if memoryID == "" {
		return nil, errors.New("memory id is required")
	}

	ctx, span := tracing.StartSpan(ctx, "agentrun.memory", "memory.load",
		attribute.String("memory.backend", m.store.Name()),
		attribute.String("memory.id", memoryID),
		attribute.String("memory.drop_policy", string(m.policy)),
	)
	defer func() { tracing.EndSpan(span, err) }()
	done := observability.Timer(ctx, "memory.load")
	defer func() { done(map[string]string{"backend": m.store.Name()}) }()

	logger := tracing.LoggerFromContext(ctx, m.logger)

	rec, err := m.get(ctx, memoryID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		logger.Debug().Msg("No stored history")
		return []chat.Message{}, nil
	}

	if m.policy == BeforeTaskRun {
		if err := m.delete(ctx, memoryID); err != nil {
			return nil, err
		}
		observability.RecordMemoryAudit(ctx, "drop_before_taskrun", memoryID, map[string]interface{}{
			"backend":  m.store.Name(),
			"messages": len(rec.Messages),
		})
		logger.Info().Int("dropped", len(rec.Messages)).Msg("Dropped history before run")
		return []chat.Message{}, nil
	}

	messages = chat.Window(chat.WithoutSystem(rec.Messages), m.window)
	span.SetAttributes(attribute.Int("memory.messages", len(messages)))
	logger.Debug().Int("messages", len(messages)).Msg("Loaded history")
	return messages, nil
}

// Save replaces the stored history of memoryID with messages and resets its expiry. Under
// AfterTaskRun the record is deleted instead. System messages are never stored.
func (m *Manager) Save(ctx context.Context, memoryID string, messages []chat.Message) (err error) {
	if memoryID == "" {
		return errors.New("memory id is required")
	}

	ctx, span := tracing.StartSpan(ctx, "agentrun.memory", "memory.save",
		attribute.String("memory.backend", m.store.Name()),
		attribute.String("memory.id", memoryID),
		attribute.String("memory.drop_policy", string(m.policy)),
	)
	defer func() { tracing.EndSpan(span, err) }()
	done := observability.Timer(ctx, "memory.save")
	defer func() { done(map[string]string{"backend": m.store.Name()}) }()

	if m.policy == AfterTaskRun {
		if err := m.delete(ctx, memoryID); err != nil {
			return err
		}
		observability.RecordMemoryAudit(ctx, "drop_after_taskrun", memoryID, map[string]interface{}{
			"backend": m.store.Name(),
		})
		return nil
	}

	stored := chat.WithoutSystem(messages)
	start := time.Now()
	err = m.store.Put(ctx, memoryID, stored, m.ttl)
	observability.RecordMemoryOperation(m.store.Name(), "put", time.Since(start), err)
	if err != nil {
		return &IOError{Backend: m.store.Name(), Op: "save", MemoryID: memoryID, Err: err}
	}

	logger := tracing.LoggerFromContext(ctx, m.logger)
	logger.Debug().
		Int("messages", len(stored)).
		Dur("ttl", m.ttl).
		Msg("Saved history")
	return nil
}

// Delete removes the history of memoryID.
func (m *Manager) Delete(ctx context.Context, memoryID string) error {
	if memoryID == "" {
		return errors.New("memory id is required")
	}
	return m.delete(ctx, memoryID)
}

// Close closes the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) get(ctx context.Context, memoryID string) (*Record, error) {
	start := time.Now()
	rec, err := m.store.Get(ctx, memoryID)
	observability.RecordMemoryOperation(m.store.Name(), "get", time.Since(start), err)
	if err != nil {
		return nil, &IOError{Backend: m.store.Name(), Op: "load", MemoryID: memoryID, Err: err}
	}
	return rec, nil
}

func (m *Manager) delete(ctx context.Context, memoryID string) error {
	start := time.Now()
	err := m.store.Delete(ctx, memoryID)
	observability.RecordMemoryOperation(m.store.Name(), "delete", time.Since(start), err)
	if err != nil {
		return &IOError{Backend: m.store.Name(), Op: "delete", MemoryID: memoryID, Err: err}
	}
	return nil
}
