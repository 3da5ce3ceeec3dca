package cli

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/harun/agentrun/internal/config"
	"github.com/harun/agentrun/internal/logger"
	"github.com/harun/agentrun/internal/metrics"
	"github.com/harun/agentrun/internal/observability"
	"github.com/harun/agentrun/internal/tracing"
)

type runOptions struct {
	*globalOptions

	prompt     string
	system     string
	agentID    string
	memoryID   string
	workDir    string
	outputs    []string
	vars       map[string]string
	metricsOut string
}

func newRunCmd(g *globalOptions) *cobra.Command {
	opts := &runOptions{globalOptions: g}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one agent invocation",
		Long: `Run one agent invocation with the configured model, memory, tools and retrievers.
The result (text, usage, tool trace, sources and gathered output files) is printed as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInvocation(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.prompt, "prompt", "p", "", "user prompt")
	flags.StringVar(&opts.system, "system", "", "system message (overrides agent.system)")
	flags.StringVar(&opts.agentID, "agent-id", "", "agent id (overrides agent.id)")
	flags.StringVarP(&opts.memoryID, "memory-id", "m", "", "conversation memory id")
	flags.StringVar(&opts.workDir, "work-dir", "", "working directory (overrides agent.work_dir)")
	flags.StringSliceVar(&opts.outputs, "output", nil, "output file to gather from the working directory (repeatable)")
	flags.StringToStringVar(&opts.vars, "var", nil, "extra variable rendered into tool templates (key=value, repeatable)")
	flags.StringVar(&opts.metricsOut, "metrics-out", "", "write Prometheus metrics to this file after the run")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

func runInvocation(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := loadConfig(opts.globalOptions)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx := cmd.Context()

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, tracing.NewLogExporter(log.Logger)); err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}
		defer func() {
			if err := tracing.ShutdownOpenTelemetry(ctx); err != nil {
				log.Warn().Err(err).Msg("Failed to flush traces")
			}
		}()
	}
	if cfg.Logging.AuditFile != "" {
		if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
			return err
		}
		defer observability.GetAuditLogger().Close()
	}

	h, err := newHost(cfg, log.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := h.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to release host resources")
		}
	}()

	res, runErr := h.agent.Invoke(ctx, h.spec(opts.prompt, opts.memoryID, opts.vars))

	if opts.metricsOut != "" {
		gatherers := prometheus.Gatherers{metrics.Default().Registry(), prometheus.DefaultGatherer}
		if err := prometheus.WriteToTextfile(opts.metricsOut, gatherers); err != nil {
			log.Warn().Err(err).Str("path", opts.metricsOut).Msg("Failed to write metrics")
		}
	}

	if runErr != nil {
		return fmt.Errorf("run failed: %w", runErr)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// apply copies the flag overrides onto cfg.
func (o *runOptions) apply(cfg *config.Config) {
	if o.system != "" {
		cfg.Agent.System = o.system
	}
	if o.agentID != "" {
		cfg.Agent.ID = o.agentID
	}
	if o.workDir != "" {
		cfg.Agent.WorkDir = o.workDir
	}
	if len(o.outputs) > 0 {
		cfg.Outputs.Files = append(cfg.Outputs.Files, o.outputs...)
	}
}
