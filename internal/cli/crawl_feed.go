package cli

import (
	"fmt"

	"crawlsync/internal/service"

	"github.com/spf13/cobra"
)

func NewCrawlFeedCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "crawl-feed [feed-url]...",
		Short: "Read RSS/Atom feeds and ingest every entry",
		Long: `Read one or more RSS/Atom feeds and ingest each entry as a resource.
With --all the feeds listed under crawler.feeds in the config are crawled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config()
			feeds := args
			if all {
				feeds = append(feeds, cfg.Crawler.Feeds...)
			}
			if len(feeds) == 0 {
				return fmt.Errorf("no feed given: pass feed urls or --all")
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			var summaries []*service.CrawlSummary
			for _, f := range feeds {
				summary, err := a.feeds.CrawlFeed(cmd.Context(), f)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", f, err)
					continue
				}
				summaries = append(summaries, summary)
			}
			return printJSON(cmd.OutOrStdout(), summaries)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "crawl every feed from the config")
	return cmd
}
