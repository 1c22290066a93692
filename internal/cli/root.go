// Package cli implements the enhancedmem CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/scrypster/enhancedmem/internal/config"
	"github.com/scrypster/enhancedmem/internal/engine"
	"github.com/scrypster/enhancedmem/internal/llm"
)

// newProvider builds the LLM provider; tests replace it with a stub.
var newProvider = llm.NewProvider

// options are the global flags shared by every command.
type options struct {
	workspace  string
	configPath string
}

// NewRootCmd returns the top-level command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "enhancedmem",
		Short:         "Episodic memory consolidation for conversational agents",
		Long:          "Segments agent sessions into episodes, extracts structured memories, and maintains a compact long-term digest.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.workspace, "workspace", "w", "", "Agent workspace root (default: $ENHANCEDMEM_WORKSPACE or ./workspace)")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to a YAML config file")

	root.AddCommand(
		newConsolidateCmd(opts),
		newContextCmd(opts),
		newHistoryCmd(opts),
		newClustersCmd(opts),
		newBackupCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.workspace != "" {
		cfg.Memory.Workspace = o.workspace
	}
	return cfg, nil
}

func (o *options) openEngine(cmd *cobra.Command) (*engine.Consolidator, *config.Config, func() error, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	c, closeFn, err := engine.NewFromConfig(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open workspace: %w", err)
	}
	return c, cfg, closeFn, nil
}

func printJSON(w io.Writer, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
