package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/harun/agentrun/internal/config"
	"github.com/harun/agentrun/pkg/agent"
	"github.com/harun/agentrun/pkg/memory"
	"github.com/harun/agentrun/pkg/memory/pgstore"
	"github.com/harun/agentrun/pkg/memory/redisstore"
	"github.com/harun/agentrun/pkg/memory/sqlitestore"
	"github.com/harun/agentrun/pkg/model"
	"github.com/harun/agentrun/pkg/outputs"
	"github.com/harun/agentrun/pkg/retriever"
	"github.com/harun/agentrun/pkg/retriever/workspace"
	"github.com/harun/agentrun/pkg/tools"
	"github.com/harun/agentrun/pkg/tools/agenttool"
	"github.com/harun/agentrun/pkg/tools/mcp"
	"github.com/harun/agentrun/pkg/tools/sandbox"
	"github.com/harun/agentrun/pkg/tools/tasktool"
	"github.com/harun/agentrun/pkg/tools/websearch"
)

// providerFactory resolves the configured model provider. Replaced in tests.
var providerFactory = model.New

// host owns everything one invocation borrows from the configuration.
type host struct {
	cfg    *config.Config
	logger zerolog.Logger

	agent      *agent.Agent
	memory     *memory.Manager
	tools      []tools.Provider
	retrievers []retriever.Retriever
	outputs    *outputs.Gatherer

	// handedOff is set once the tool providers belong to an invocation, which closes them.
	handedOff bool
	closers   []func() error
}

func newHost(cfg *config.Config, logger zerolog.Logger) (*host, error) {
	h := &host{cfg: cfg, logger: logger}
	if err := h.init(); err != nil {
		if cerr := h.Close(context.Background()); cerr != nil {
			logger.Warn().Err(cerr).Msg("Failed to release partially built host")
		}
		return nil, err
	}
	return h, nil
}

func (h *host) init() error {
	provider, err := providerFactory(h.cfg.Model.Provider, model.Credentials{
		APIKey:  h.cfg.Model.APIKey,
		BaseURL: h.cfg.Model.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to create model provider: %w", err)
	}

	h.agent, err = agent.Build(provider, h.cfg.Model.Config, agent.WithLogger(h.logger))
	if err != nil {
		return err
	}

	if err := h.initMemory(); err != nil {
		return err
	}
	if err := h.initTools(); err != nil {
		return err
	}
	if err := h.initRetrievers(provider); err != nil {
		return err
	}

	if len(h.cfg.Outputs.Files) > 0 {
		h.outputs, err = outputs.New(outputs.Config{Root: h.cfg.Outputs.Dir, Logger: h.logger})
		if err != nil {
			return err
		}
	}
	return nil
}

func (h *host) initMemory() error {
	mc := h.cfg.Memory

	var store memory.Store
	var err error
	switch mc.Backend {
	case config.BackendNone:
		return nil
	case config.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(mc.SQLite.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create memory directory: %w", err)
		}
		store, err = sqlitestore.New(sqlitestore.Config{Path: mc.SQLite.Path, Table: mc.SQLite.Table})
	case config.BackendRedis:
		store, err = redisstore.New(mc.Redis)
	case config.BackendPostgres:
		store, err = pgstore.New(pgstore.Config{DSN: mc.Postgres.DSN, Table: mc.Postgres.Table})
	default:
		return fmt.Errorf("unsupported memory backend: %s", mc.Backend)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s memory: %w", mc.Backend, err)
	}

	policy, err := memory.ParseDropPolicy(mc.DropPolicy)
	if err != nil {
		store.Close()
		return err
	}
	mgr, err := memory.NewManager(memory.Config{
		Store:      store,
		WindowSize: mc.Window,
		TTL:        mc.TTL,
		DropPolicy: policy,
		Logger:     h.logger,
	})
	if err != nil {
		store.Close()
		return err
	}

	h.memory = mgr
	h.closers = append(h.closers, mgr.Close)
	return nil
}

func (h *host) initTools() error {
	tc := h.cfg.Tools

	for _, sc := range tc.MCP {
		p, err := mcp.New(sc, h.logger)
		if err != nil {
			return fmt.Errorf("failed to configure mcp server %s: %w", sc.Name, err)
		}
		h.tools = append(h.tools, p)
	}

	if tc.Sandbox.Enabled {
		p, err := sandbox.New(tc.Sandbox.Config, h.logger)
		if err != nil {
			return fmt.Errorf("failed to configure sandbox: %w", err)
		}
		h.tools = append(h.tools, p)
	}

	if tc.WebSearch.Enabled {
		engine, err := websearch.NewEngine(tc.WebSearch.Config)
		if err != nil {
			return fmt.Errorf("failed to configure web search: %w", err)
		}
		h.tools = append(h.tools, websearch.NewProvider(engine, tc.WebSearch.MaxResults, h.logger))
	}

	if len(tc.Tasks) > 0 {
		p, err := tasktool.New(tasktool.CommandRunner{}, tc.Tasks, h.logger)
		if err != nil {
			return fmt.Errorf("failed to configure tasks: %w", err)
		}
		h.tools = append(h.tools, p)
	}

	for _, rc := range tc.Agents {
		rc.Logger = h.logger
		p, err := agenttool.NewRemote(rc)
		if err != nil {
			return fmt.Errorf("failed to configure remote agent %s: %w", rc.Name, err)
		}
		h.tools = append(h.tools, p)
	}
	return nil
}

func (h *host) initRetrievers(provider model.Provider) error {
	wc := h.cfg.Retrievers.Workspace
	if !wc.Enabled {
		return nil
	}

	var embedder workspace.Embedder
	if h.cfg.Model.EmbeddingModel != "" && provider.Capabilities().Embeddings {
		em, err := provider.EmbeddingModel(h.cfg.Model.Config)
		if err != nil {
			return fmt.Errorf("failed to create embedding model: %w", err)
		}
		embedder = em
	}

	search := workspace.DefaultSearchOptions()
	if wc.Limit > 0 {
		search.Limit = wc.Limit
	}
	search.MinScore = wc.MinScore

	if err := os.MkdirAll(filepath.Dir(wc.DBPath), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}
	idx, err := workspace.NewIndex(workspace.Config{
		WorkspacePath: wc.Path,
		DBPath:        wc.DBPath,
		Logger:        h.logger,
		Embedder:      embedder,
		Search:        search,
		Watch:         wc.Watch,
	})
	if err != nil {
		return fmt.Errorf("failed to open workspace index: %w", err)
	}
	h.closers = append(h.closers, idx.Close)
	h.retrievers = append(h.retrievers, idx)

	if wc.Tools {
		h.tools = append(h.tools, workspace.NewToolProvider(idx, false))
	}
	return nil
}

// spec hands the tool providers over to the invocation.
func (h *host) spec(prompt, memoryID string, vars map[string]string) agent.Spec {
	h.handedOff = true
	s := agent.Spec{
		AgentID:     h.cfg.Agent.ID,
		System:      h.cfg.Agent.System,
		Prompt:      prompt,
		Tools:       h.tools,
		Variables:   vars,
		Retrievers:  h.retrievers,
		WorkDir:     h.cfg.Agent.WorkDir,
		Outputs:     h.outputs,
		OutputFiles: h.cfg.Outputs.Files,
	}
	if h.memory != nil {
		s.Memory = h.memory
		s.MemoryID = memoryID
	} else if memoryID != "" {
		h.logger.Warn().Str("memory_id", memoryID).Msg("Memory id ignored, no memory backend configured")
	}
	return s
}

// Close releases everything the host owns, in reverse order of acquisition.
func (h *host) Close(ctx context.Context) error {
	var errs []error
	if !h.handedOff {
		for i := len(h.tools) - 1; i >= 0; i-- {
			if err := h.tools[i].Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s: %w", h.tools[i].Name(), err))
			}
		}
	}
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
