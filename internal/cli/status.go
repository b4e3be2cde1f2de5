package cli

import (
	"github.com/spf13/cobra"
)

func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		failed bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show outbox event counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts.Config())
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.admin.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := map[string]interface{}{"counts": counts}

			if failed {
				events, err := a.admin.ListFailed(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out["failed"] = events
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&failed, "failed", false, "also list FAILED events")
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of FAILED events to list")
	return cmd
}
