package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <url>...",
		Short: "Fetch pages and store them with their outbox events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(rootOpts.Config())
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Config().Crawler.FetchTimeout*2*timeoutScale(len(args)))
			defer cancel()

			failed := 0
			for _, u := range args {
				res, err := a.ingest.Ingest(ctx, u)
				if err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", u, err)
					continue
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d urls failed", failed, len(args))
			}
			return nil
		},
	}
}

func timeoutScale(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(n)
}
