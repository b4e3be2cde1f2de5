package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

type ReplayOptions struct {
	*RootOptions
	SequenceID int64
	All        bool
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Move FAILED outbox events back to PENDING",
		Long: `Move FAILED outbox events back to PENDING with a fresh attempt budget.

Examples:
  crawlsync replay --seq 42
  crawlsync replay --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.SequenceID > 0) == opts.All {
				return fmt.Errorf("exactly one of --seq or --all is required")
			}

			a, err := newApp(opts.Config())
			if err != nil {
				return err
			}
			defer a.Close()

			if opts.All {
				n, err := a.admin.ReplayAllFailed(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"replayed": n})
			}

			if err := a.admin.Replay(cmd.Context(), opts.SequenceID); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int64{"replayed": 1, "sequence_id": opts.SequenceID})
		},
	}
	cmd.Flags().Int64Var(&opts.SequenceID, "seq", 0, "sequence id of the FAILED event")
	cmd.Flags().BoolVar(&opts.All, "all", false, "replay every FAILED event")
	return cmd
}
