package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newContextCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Print the memory context for prompt building",
		Long:  "Print the long-term digest followed by the most recent episodes.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, closeFn, err := opts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			text, err := c.MemoryContext()
			if err != nil {
				return fmt.Errorf("memory context: %w", err)
			}
			if text != "" {
				fmt.Fprintln(cmd.OutOrStdout(), text)
			}
			return nil
		},
	}
}
