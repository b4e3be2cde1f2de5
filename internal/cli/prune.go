package cli

import (
	"time"

	"crawlsync/internal/job"

	"github.com/spf13/cobra"
)

func NewPruneCommand(rootOpts *RootOptions) *cobra.Command {
	var retention time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete DONE outbox events older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			dc := cfg.Dispatcher
			if retention > 0 {
				dc.Retention = retention
			}
			n, err := job.NewOutboxPruneJob(a.db, &dc).RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int64{"pruned": n})
		},
	}
	cmd.Flags().DurationVar(&retention, "retention", 0, "override dispatcher.retention")
	return cmd
}
