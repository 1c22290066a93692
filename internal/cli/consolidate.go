package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scrypster/enhancedmem/internal/engine"
	"github.com/scrypster/enhancedmem/internal/notify"
	"github.com/scrypster/enhancedmem/internal/session"
	"github.com/scrypster/enhancedmem/pkg/types"
)

// errConsolidationFailed is returned when the engine reports failure.
var errConsolidationFailed = errors.New("consolidation failed, session cursor unchanged")

type consolidateResult struct {
	OK               bool   `json:"ok"`
	Session          string `json:"session"`
	Messages         int    `json:"messages"`
	LastConsolidated int    `json:"last_consolidated"`
	Advanced         int    `json:"advanced"`
}

func newConsolidateCmd(opts *options) *cobra.Command {
	var (
		sessionPath string
		archive     bool
		window      int
		model       string
		pending     string
		trace       bool
		publish     bool
	)

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Consolidate the unconsolidated span of a session",
		Long:  "Detect whether the open episode of a session has ended and, if so, store it as a MemCell with its extracted memories.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cfg, closeFn, err := opts.openEngine(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			provider, err := newProvider(cfg.LLM)
			if err != nil {
				return fmt.Errorf("create llm provider: %w", err)
			}
			if model == "" {
				model = cfg.LLM.Model
			}

			if publish {
				c.SetNotifier(notify.NewWriter(c.Layout().MemoryDir))
			}

			sess, err := session.Load(sessionPath)
			if err != nil {
				return err
			}
			before := sess.LastConsolidated()

			runOpts := engine.Options{ArchiveAll: archive, MemoryWindow: window}
			if pending != "" {
				runOpts.PendingUserMessage = &types.Message{
					Role:      types.RoleUser,
					Content:   pending,
					Timestamp: time.Now().Format("2006-01-02T15:04:05.000000"),
				}
			}

			ctx := cmd.Context()
			tc := engine.NewTraceCollector()
			if trace {
				ctx = engine.WithTraceCollector(ctx, tc)
			}

			ok := c.Consolidate(ctx, sess, provider, model, runOpts)
			if trace {
				fmt.Fprint(cmd.ErrOrStderr(), tc.String())
			}
			if !ok {
				return errConsolidationFailed
			}
			if err := sess.Save(); err != nil {
				return err
			}

			return printJSON(cmd.OutOrStdout(), consolidateResult{
				OK:               ok,
				Session:          sess.Key(),
				Messages:         len(sess.Messages()),
				LastConsolidated: sess.LastConsolidated(),
				Advanced:         sess.LastConsolidated() - before,
			})
		},
	}

	cmd.Flags().StringVarP(&sessionPath, "session", "s", "", "Session file (JSON Lines)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Consolidate every remaining message with a forced boundary")
	cmd.Flags().IntVar(&window, "window", 0, "Memory window; the most recent half stays unconsolidated (default: from config)")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model identifier (default: from config)")
	cmd.Flags().StringVar(&pending, "pending", "", "A user message not yet appended to the session")
	cmd.Flags().BoolVar(&trace, "trace", false, "Print state transitions to stderr")
	cmd.Flags().BoolVar(&publish, "notify", false, "Publish consolidation events for the watch command")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}
