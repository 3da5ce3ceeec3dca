// Package cli implements the agentrun command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/harun/agentrun/internal/config"
)

const version = "0.1.0"

// globalOptions holds the persistent flags shared by every subcommand.
type globalOptions struct {
	cfgFile  string
	logLevel string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "agentrun",
		Short: "agentrun - single-turn LLM agent runner",
		Long: `agentrun is a single-turn LLM agent runner. Each run builds the configured model,
attaches memory, tools and retrievers, runs the tool loop and prints the result as JSON.`,
		Version:      version,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.agentrun/agentrun.json)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	// Version template
	cmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)

	cmd.AddCommand(newRunCmd(opts), newConfigCmd(opts))
	return cmd
}

// Execute runs the command tree. It is called by main.main().
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the command tree with ctx, cancelling any running invocation when ctx
// is done.
func ExecuteContext(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	return cfg, nil
}
