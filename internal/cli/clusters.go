package cli

import (
	"github.com/spf13/cobra"
)

func newClustersCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "Inspect the cluster index",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "members CLUSTER_ID",
		Short: "List the event ids assigned to a cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, closeFn, err := opts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			members, err := c.Clusters().Members(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if members == nil {
				members = []string{}
			}
			return printJSON(cmd.OutOrStdout(), members)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the full cluster index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, _, closeFn, err := opts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			state, err := c.Clusters().State(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), state)
		},
	})

	return cmd
}
