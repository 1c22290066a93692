package cli

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/scrypster/enhancedmem/internal/notify"
	"github.com/scrypster/enhancedmem/internal/storage"
)

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream consolidation events published with consolidate --notify",
		Long:  "Print one JSON line per consolidation event until interrupted. Events are consumed as they are printed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			layout := storage.NewLayout(cfg.Memory.Workspace)

			var mu sync.Mutex
			out := cmd.OutOrStdout()
			w := notify.NewWatcher(layout.MemoryDir, func(e notify.Event) {
				b, err := json.Marshal(e)
				if err != nil {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintln(out, string(b))
			})
			if err := w.Start(); err != nil {
				return fmt.Errorf("start watcher: %w", err)
			}
			defer w.Stop()

			<-cmd.Context().Done()
			return nil
		},
	}
}
