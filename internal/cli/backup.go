package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/enhancedmem/internal/backup"
	"github.com/scrypster/enhancedmem/internal/storage"
)

func newBackupCmd(opts *options) *cobra.Command {
	var (
		dest   string
		keep   int
		verify bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the memory workspace",
		Long:  "Copy the digest, logs, history, profile, and cluster index into a timestamped snapshot directory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			layout := storage.NewLayout(cfg.Memory.Workspace)
			if dest == "" {
				dest = filepath.Join(layout.Workspace, "backups")
			}

			res, err := backup.Snapshot(cmd.Context(), layout, backup.Config{DestDir: dest, Keep: keep, Verify: verify}, time.Now())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&dest, "dest", "", "Snapshot directory (default: <workspace>/backups)")
	cmd.Flags().IntVar(&keep, "keep", 10, "Snapshots to retain, 0 keeps all")
	cmd.Flags().BoolVar(&verify, "verify", true, "Run an integrity check on the copied cluster index")
	return cmd
}
